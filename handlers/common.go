package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snipara/rlm/engine"
	"github.com/snipara/rlm/metrics"
	"github.com/snipara/rlm/middleware"
	"github.com/snipara/rlm/models"
	"github.com/snipara/rlm/services"
)

// credential pulls the caller's credential from X-API-Key or a Bearer header.
func credential(c *gin.Context) string {
	if v := c.GetHeader("X-API-Key"); v != "" {
		return v
	}
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// Runner is the shared execution path under every transport: admit,
// build the handler context, dispatch, account usage, auto-remember.
type Runner struct {
	log       *zap.Logger
	admission services.AdmissionService
	engine    *engine.Engine
	usage     services.UsageService
	projects  engine.ProjectService
	remember  *middleware.AutoRemember
}

func NewRunner(log *zap.Logger, admission services.AdmissionService, eng *engine.Engine,
	usage services.UsageService, projects engine.ProjectService, remember *middleware.AutoRemember) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		log:       log,
		admission: admission,
		engine:    eng,
		usage:     usage,
		projects:  projects,
		remember:  remember,
	}
}

func (r *Runner) admit(c *gin.Context) (*services.Principal, error) {
	return r.admission.Admit(c.Request.Context(), c.Param("project"), credential(c), c.ClientIP())
}

// handlerContext assembles the per-call context from the admitted principal,
// the project settings, and the session headers.
func (r *Runner) handlerContext(ctx context.Context, c *gin.Context, principal *services.Principal) *engine.HandlerContext {
	hc := &engine.HandlerContext{
		ProjectID:   principal.ProjectID,
		ProjectSlug: c.Param("project"),
		UserID:      principal.UserID,
		TeamID:      principal.TeamID,
		AgentID:     c.GetHeader("X-Agent-Id"),
		Plan:        principal.Plan,
		AccessLevel: principal.AccessLevel,
		SessionID:   c.GetHeader("Mcp-Session-Id"),
	}
	if hc.SessionID == "" {
		hc.SessionID = c.GetHeader("X-Session-Id")
	}
	if settings, err := r.projects.Settings(ctx, principal.ProjectID); err == nil {
		hc.Settings = *settings
	} else {
		r.log.Warn("failed to load project settings",
			zap.String("project_id", principal.ProjectID), zap.Error(err))
	}
	return hc
}

// run executes one tool call and accounts it, success or not.
func (r *Runner) run(ctx context.Context, principal *services.Principal, hc *engine.HandlerContext,
	tool models.ToolName, raw json.RawMessage) (*models.ToolResult, error) {

	start := time.Now()
	res, err := r.engine.Execute(ctx, hc, tool, raw)
	elapsed := time.Since(start)
	latency := elapsed.Milliseconds()
	metrics.ToolLatency.WithLabelValues(string(tool)).Observe(elapsed.Seconds())

	rec := &models.UsageRecord{
		Tool:      tool,
		LatencyMs: int(latency),
		Success:   err == nil,
		KeyPrefix: principal.KeyPrefix,
	}
	if pid, perr := uuid.Parse(principal.ProjectID); perr == nil {
		rec.ProjectID = pid
	}
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.InputTokens = res.InputTokens
		rec.OutputTokens = res.OutputTokens
	}
	if terr := r.usage.Track(ctx, rec); terr != nil {
		r.log.Warn("failed to track usage", zap.Error(terr))
	}

	if err != nil {
		r.log.Info("tool call failed",
			zap.String("tool", string(tool)),
			zap.String("project_id", principal.ProjectID),
			zap.Int64("latency_ms", latency),
			zap.Error(err))
		return nil, err
	}

	if r.remember != nil {
		r.remember.Observe(ctx, hc, tool, raw, res)
	}
	return res, nil
}
