package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/snipara/rlm/engine"
	"github.com/snipara/rlm/services"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeServerError    = -32000
)

const genericErrorMessage = "An error occurred while processing the request"

// safeSubstrings is the static allow-list: an error whose text contains one
// of these passes to the client verbatim. Everything else is replaced with
// the generic message and kept only in logs and usage records.
var safeSubstrings = []string{
	"invalid or missing credential",
	"access denied",
	"project not found",
	"team not found",
	"rate limit exceeded",
	"monthly query limit reached",
	"team features require",
	"write access required",
	"admin access required",
	"plan upgrade required",
	"unknown tool",
	"only rlm_multi_project_query",
	"invalid params",
	"version conflict",
	"not found",
	"is required",
	"are required",
	"must be between",
	"must be non-negative",
	"at most",
	"at least one filter",
	"invalid level",
	"invalid search_mode",
	"invalid summary_type",
	"invalid path",
	"unknown setting",
	"already a member",
	"swarm is full",
	"document not found",
	"key not found",
	"client not found",
	"workspace not found",
	"webhook not found",
}

// sanitizeError returns the client-safe rendering of err.
func sanitizeError(err error) string {
	var admission *services.AdmissionError
	if errors.As(err, &admission) {
		return admission.Message
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, safe := range safeSubstrings {
		if strings.Contains(lower, safe) {
			return msg
		}
	}
	return genericErrorMessage
}

// statusForError maps a tool-call error to its HTTP status.
func statusForError(err error) int {
	var admission *services.AdmissionError
	switch {
	case errors.As(err, &admission):
		return admission.Status
	case errors.Is(err, engine.ErrUnknownTool), errors.Is(err, engine.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrWriteAccessRequired),
		errors.Is(err, engine.ErrAdminAccessRequired),
		errors.Is(err, engine.ErrPlanUpgradeRequired):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrConflict):
		return http.StatusConflict
	case strings.Contains(err.Error(), "not found"):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// rpcCodeForError maps a tool-call error to its JSON-RPC error code.
func rpcCodeForError(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnknownTool):
		return codeInvalidParams
	case errors.Is(err, engine.ErrInvalidParams):
		return codeInvalidParams
	case errors.Is(err, engine.ErrNotFound),
		errors.Is(err, engine.ErrWriteAccessRequired),
		errors.Is(err, engine.ErrAdminAccessRequired),
		errors.Is(err, engine.ErrPlanUpgradeRequired),
		errors.Is(err, engine.ErrConflict):
		return codeServerError
	default:
		var admission *services.AdmissionError
		if errors.As(err, &admission) {
			return codeServerError
		}
		return codeInternalError
	}
}
