package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snipara/rlm/engine"
	"github.com/snipara/rlm/models"
	"github.com/snipara/rlm/services"
)

// ProjectResolver loads a project by id or slug for paths that authenticate
// with the internal secret instead of a credential.
type ProjectResolver interface {
	Resolve(ctx context.Context, idOrSlug string) (*models.Project, error)
}

// RESTHandlers serves the /v1 surface: direct tool execution, project
// metadata, memories, and the reindex trigger.
type RESTHandlers struct {
	runner         *Runner
	jobs           services.IndexJobService
	memories       engine.MemoryStore
	resolver       ProjectResolver
	internalSecret string
}

func NewRESTHandlers(runner *Runner, jobs services.IndexJobService, memories engine.MemoryStore,
	resolver ProjectResolver, internalSecret string) *RESTHandlers {
	return &RESTHandlers{
		runner:         runner,
		jobs:           jobs,
		memories:       memories,
		resolver:       resolver,
		internalSecret: internalSecret,
	}
}

type executeToolRequest struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ExecuteTool serves POST /v1/:project/mcp with a {tool, params} body.
func (h *RESTHandlers) ExecuteTool(c *gin.Context) {
	principal, err := h.runner.admit(c)
	if err != nil {
		abortAdmission(c, err)
		return
	}

	var req executeToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid JSON body"})
		return
	}
	if req.Tool == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "tool is required"})
		return
	}

	hc := h.runner.handlerContext(c.Request.Context(), c, principal)
	res, err := h.runner.run(c.Request.Context(), principal, hc, models.ToolName(req.Tool), req.Params)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"success": false, "error": sanitizeError(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  res.Data,
		"usage": gin.H{
			"input_tokens":  res.InputTokens,
			"output_tokens": res.OutputTokens,
		},
	})
}

// Context serves GET /v1/:project/context as a query-string front for
// rlm_context_query.
func (h *RESTHandlers) Context(c *gin.Context) {
	principal, err := h.runner.admit(c)
	if err != nil {
		abortAdmission(c, err)
		return
	}

	params := models.ContextQueryParams{
		Query:     c.Query("query"),
		SessionID: c.Query("session_id"),
	}
	if v := c.Query("max_tokens"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.MaxTokens = n
		}
	}
	if v := c.Query("search_mode"); v != "" {
		params.SearchMode = models.SearchMode(v)
	}
	raw, _ := json.Marshal(params)

	hc := h.runner.handlerContext(c.Request.Context(), c, principal)
	res, err := h.runner.run(c.Request.Context(), principal, hc, models.ToolContextQuery, raw)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	c.JSON(http.StatusOK, res.Data)
}

// Limits serves GET /v1/:project/limits.
func (h *RESTHandlers) Limits(c *gin.Context) {
	principal, err := h.runner.admit(c)
	if err != nil {
		abortAdmission(c, err)
		return
	}
	summary, err := h.runner.usage.Summary(c.Request.Context(), principal.ProjectID, principal)
	if err != nil {
		h.runner.log.Error("failed to build usage summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericErrorMessage})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Stats serves GET /v1/:project/stats.
func (h *RESTHandlers) Stats(c *gin.Context) {
	principal, err := h.runner.admit(c)
	if err != nil {
		abortAdmission(c, err)
		return
	}
	stats, err := h.runner.projects.Stats(c.Request.Context(), principal.ProjectID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListMemories serves GET /v1/:project/memories.
func (h *RESTHandlers) ListMemories(c *gin.Context) {
	principal, err := h.runner.admit(c)
	if err != nil {
		abortAdmission(c, err)
		return
	}

	params := models.MemoriesParams{
		Category: c.Query("category"),
		Type:     models.MemoryType(c.Query("type")),
		Scope:    models.MemoryScope(c.Query("scope")),
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Limit = n
		}
	}
	params.Normalize()

	owner := engine.MemoryOwner{
		ProjectID: principal.ProjectID,
		TeamID:    principal.TeamID,
		UserID:    principal.UserID,
		AgentID:   c.GetHeader("X-Agent-Id"),
	}
	memories, err := h.memories.List(c.Request.Context(), owner, params)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": memories, "count": len(memories)})
}

// CreateMemory serves POST /v1/:project/memories.
func (h *RESTHandlers) CreateMemory(c *gin.Context) {
	principal, err := h.runner.admit(c)
	if err != nil {
		abortAdmission(c, err)
		return
	}
	if !principal.AccessLevel.CanWrite() {
		c.JSON(http.StatusForbidden, gin.H{"error": engine.ErrWriteAccessRequired.Error()})
		return
	}

	var params models.RememberParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	params.Normalize()
	if err := params.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner := engine.MemoryOwner{
		ProjectID: principal.ProjectID,
		TeamID:    principal.TeamID,
		UserID:    principal.UserID,
		AgentID:   c.GetHeader("X-Agent-Id"),
	}
	memory, err := h.memories.Remember(c.Request.Context(), owner, params)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	c.JSON(http.StatusCreated, memory)
}

// internalAuthorized checks the shared-secret header used by internal
// automation.
func (h *RESTHandlers) internalAuthorized(c *gin.Context) bool {
	if h.internalSecret == "" {
		return false
	}
	given := c.GetHeader("X-Internal-Secret")
	return subtle.ConstantTimeCompare([]byte(given), []byte(h.internalSecret)) == 1
}

// reindexProject resolves the target project for a reindex call, either
// through the internal secret or through key admission at EDITOR or better.
func (h *RESTHandlers) reindexProject(c *gin.Context) (string, bool) {
	if h.internalAuthorized(c) {
		proj, err := h.resolver.Resolve(c.Request.Context(), c.Param("project"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return "", false
		}
		return proj.ID.String(), true
	}

	principal, err := h.runner.admit(c)
	if err != nil {
		abortAdmission(c, err)
		return "", false
	}
	if !principal.AccessLevel.CanWrite() {
		c.JSON(http.StatusForbidden, gin.H{"error": engine.ErrWriteAccessRequired.Error()})
		return "", false
	}
	return principal.ProjectID, true
}

// Reindex serves POST /v1/:project/reindex?mode=incremental|full.
func (h *RESTHandlers) Reindex(c *gin.Context) {
	projectID, ok := h.reindexProject(c)
	if !ok {
		return
	}

	mode := c.Query("mode")
	switch mode {
	case "", "incremental", "full":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be incremental or full"})
		return
	}

	job, existed, err := h.jobs.Enqueue(c.Request.Context(), projectID, mode)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":          job.ID,
		"status":          job.Status,
		"mode":            job.Mode,
		"already_running": existed,
	})
}

// ReindexStatus serves GET /v1/:project/reindex/:job_id.
func (h *RESTHandlers) ReindexStatus(c *gin.Context) {
	projectID, ok := h.reindexProject(c)
	if !ok {
		return
	}

	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), projectID, jobID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	c.JSON(http.StatusOK, job)
}

// DemoAnalytics serves GET /v1/admin/demo-analytics, gated on the internal
// secret.
func (h *RESTHandlers) DemoAnalytics(c *gin.Context) {
	if !h.internalAuthorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing credential"})
		return
	}

	since := time.Now().AddDate(0, 0, -30)
	rows, err := h.runner.usage.ToolBreakdown(c.Request.Context(), since)
	if err != nil {
		h.runner.log.Error("failed to aggregate analytics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericErrorMessage})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"since": since.Format(time.RFC3339),
		"tools": rows,
	})
}
