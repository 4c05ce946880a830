package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/snipara/rlm/engine"
	"github.com/snipara/rlm/models"
	"github.com/snipara/rlm/services"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "snipara-rlm"
	serverVersion   = "1.0.0"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request carries no id. Notifications
// get processed but never answered.
func (r *rpcRequest) isNotification() bool {
	return len(r.ID) == 0 || bytes.Equal(r.ID, []byte("null"))
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func rpcResult(id json.RawMessage, result interface{}) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcFailure(id json.RawMessage, code int, message string) *rpcResponse {
	if id == nil {
		id = json.RawMessage("null")
	}
	return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPHandlers serves the JSON-RPC 2.0 MCP surface: project-scoped on
// /mcp/:project and team-scoped on /mcp/team/:team.
type MCPHandlers struct {
	runner *Runner
}

func NewMCPHandlers(runner *Runner) *MCPHandlers {
	return &MCPHandlers{runner: runner}
}

// HandleProject serves POST /mcp/:project.
func (h *MCPHandlers) HandleProject(c *gin.Context) {
	principal, err := h.runner.admit(c)
	if err != nil {
		abortAdmission(c, err)
		return
	}

	h.serve(c, func(req *rpcRequest) *rpcResponse {
		return h.dispatch(c, principal, req, models.AllTools(), func(tool models.ToolName, raw json.RawMessage) (*models.ToolResult, error) {
			hc := h.runner.handlerContext(c.Request.Context(), c, principal)
			return h.runner.run(c.Request.Context(), principal, hc, tool, raw)
		})
	})
}

// teamTools is the catalog exposed on the team endpoint.
var teamCatalog = []models.ToolName{models.ToolMultiProjectQuery}

// HandleTeam serves POST /mcp/team/:team. Only rlm_multi_project_query is
// available here; the fan-out resolves accessible projects itself.
func (h *MCPHandlers) HandleTeam(c *gin.Context) {
	principal, err := h.runner.admission.AdmitTeam(c.Request.Context(), c.Param("team"), credential(c), c.ClientIP())
	if err != nil {
		abortAdmission(c, err)
		return
	}

	h.serve(c, func(req *rpcRequest) *rpcResponse {
		return h.dispatch(c, principal, req, teamCatalog, func(tool models.ToolName, raw json.RawMessage) (*models.ToolResult, error) {
			if tool != models.ToolMultiProjectQuery {
				return nil, fmt.Errorf("%w: only rlm_multi_project_query is available on the team endpoint", engine.ErrInvalidParams)
			}
			hc := h.runner.handlerContext(c.Request.Context(), c, principal)
			return h.runner.run(c.Request.Context(), principal, hc, tool, raw)
		})
	})
}

// serve parses single or batch JSON-RPC envelopes and writes responses.
func (h *MCPHandlers) serve(c *gin.Context, handle func(*rpcRequest) *rpcResponse) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, rpcFailure(nil, codeInvalidRequest, "request body too large"))
			return
		}
		c.JSON(http.StatusOK, rpcFailure(nil, codeParseError, "failed to read request body"))
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		c.JSON(http.StatusOK, rpcFailure(nil, codeParseError, "empty request body"))
		return
	}

	if trimmed[0] == '[' {
		var reqs []rpcRequest
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			c.JSON(http.StatusOK, rpcFailure(nil, codeParseError, "invalid JSON"))
			return
		}
		if len(reqs) == 0 {
			c.JSON(http.StatusOK, rpcFailure(nil, codeInvalidRequest, "empty batch"))
			return
		}
		responses := make([]*rpcResponse, 0, len(reqs))
		for i := range reqs {
			if resp := h.handleOne(&reqs[i], handle); resp != nil {
				responses = append(responses, resp)
			}
		}
		if len(responses) == 0 {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, responses)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		c.JSON(http.StatusOK, rpcFailure(nil, codeParseError, "invalid JSON"))
		return
	}
	resp := h.handleOne(&req, handle)
	if resp == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *MCPHandlers) handleOne(req *rpcRequest, handle func(*rpcRequest) *rpcResponse) *rpcResponse {
	resp := handle(req)
	if req.isNotification() {
		return nil
	}
	return resp
}

// dispatch routes one JSON-RPC request to its method.
func (h *MCPHandlers) dispatch(c *gin.Context, principal *services.Principal, req *rpcRequest,
	tools []models.ToolName, call func(models.ToolName, json.RawMessage) (*models.ToolResult, error)) *rpcResponse {

	if req.JSONRPC != "2.0" {
		return rpcFailure(req.ID, codeInvalidRequest, "jsonrpc must be \"2.0\"")
	}

	switch req.Method {
	case "initialize":
		return rpcResult(req.ID, gin.H{
			"protocolVersion": protocolVersion,
			"serverInfo":      gin.H{"name": serverName, "version": serverVersion},
			"capabilities":    gin.H{"tools": gin.H{}},
		})

	case "notifications/initialized":
		// Acknowledged silently; the client sends this as a notification.
		return rpcResult(req.ID, gin.H{})

	case "ping":
		return rpcResult(req.ID, gin.H{})

	case "tools/list":
		return rpcResult(req.ID, gin.H{"tools": catalog(tools)})

	case "tools/call":
		var params toolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			return rpcFailure(req.ID, codeInvalidParams, "tools/call requires a tool name")
		}
		res, err := call(models.ToolName(params.Name), params.Arguments)
		if err != nil {
			return rpcFailure(req.ID, rpcCodeForError(err), sanitizeError(err))
		}
		text, err := json.Marshal(res.Data)
		if err != nil {
			h.runner.log.Error("failed to serialize tool result", zap.Error(err))
			return rpcFailure(req.ID, codeInternalError, genericErrorMessage)
		}
		return rpcResult(req.ID, gin.H{
			"content": []gin.H{{"type": "text", "text": string(text)}},
			"isError": false,
		})

	default:
		return rpcFailure(req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
}

// abortAdmission writes the admission failure as a plain HTTP error. The
// caller never reached the JSON-RPC layer.
func abortAdmission(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusForError(err), gin.H{"error": sanitizeError(err)})
}
