package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipara/rlm/models"
	"github.com/snipara/rlm/services"
)

func TestExecuteTool(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/v1/docs/mcp", map[string]interface{}{
		"tool":   "rlm_context_query",
		"params": map[string]interface{}{"query": "pricing tiers"},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, w.Body.String(), "Pricing Tiers")

	usage := body["usage"].(map[string]interface{})
	assert.Greater(t, usage["input_tokens"].(float64), 0.0)

	require.Len(t, h.usage.records, 1)
	assert.True(t, h.usage.records[0].Success)
}

func TestExecuteToolMissingTool(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/v1/docs/mcp", map[string]interface{}{
		"params": map[string]interface{}{"query": "x"},
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "tool is required")
}

func TestExecuteToolUnknownTool(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/v1/docs/mcp", map[string]interface{}{
		"tool": "rlm_nope",
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "unknown tool")
}

func TestExecuteToolPlanGate(t *testing.T) {
	h := newHarness(t)

	// FREE plan cannot run multi_query.
	w := h.do(t, http.MethodPost, "/v1/docs/mcp", map[string]interface{}{
		"tool":   "rlm_multi_query",
		"params": map[string]interface{}{"queries": []string{"a", "b"}},
	}, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	body := decodeJSON(t, w)
	assert.Contains(t, body["error"], "plan upgrade required")
}

func TestExecuteToolAdmissionRejected(t *testing.T) {
	h := newHarness(t)
	h.admission.err = &services.AdmissionError{
		Status:  http.StatusTooManyRequests,
		Message: "rate limit exceeded",
	}

	w := h.do(t, http.MethodPost, "/v1/docs/mcp", map[string]interface{}{
		"tool": "rlm_stats",
	}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestContextEndpoint(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/v1/docs/context?query=pricing+tiers&max_tokens=500", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Pricing Tiers")

	require.Len(t, h.usage.records, 1)
	assert.Equal(t, models.ToolContextQuery, h.usage.records[0].Tool)
}

func TestLimitsEndpoint(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/v1/docs/limits", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, "FREE", body["plan"])
	assert.Equal(t, 500.0, body["monthly_limit"])
	assert.Equal(t, 20.0, body["rate_limit_per_minute"])
}

func TestStatsEndpoint(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/v1/docs/stats", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, 1.0, body["documents"])
	assert.Equal(t, 2.0, body["sections"])
}

func TestListMemories(t *testing.T) {
	h := newHarness(t)
	h.memories.listed = []models.AgentMemory{
		{ID: uuid.New(), Type: models.MemoryFact, Content: "Postgres is the primary store"},
	}

	w := h.do(t, http.MethodGet, "/v1/docs/memories?type=FACT", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, 1.0, body["count"])
}

func TestCreateMemory(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/v1/docs/memories", map[string]interface{}{
		"content": "The deploy pipeline runs on merge to main",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	require.Len(t, h.memories.saved, 1)
	saved := h.memories.saved[0]
	assert.Equal(t, models.MemoryFact, saved.Type)
	assert.Equal(t, models.ScopeProject, saved.Scope)
}

func TestCreateMemoryRequiresWriter(t *testing.T) {
	h := newHarness(t)
	h.admission.principal.AccessLevel = models.AccessViewer

	w := h.do(t, http.MethodPost, "/v1/docs/memories", map[string]interface{}{
		"content": "should not be stored",
	}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, h.memories.saved)
}

func TestCreateMemoryValidation(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/v1/docs/memories", map[string]interface{}{
		"content": "",
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "content is required")
}

func TestReindex(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/v1/docs/reindex?mode=full", nil, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, false, body["already_running"])
	assert.Equal(t, "full", h.jobs.lastMode)
}

func TestReindexInvalidMode(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/v1/docs/reindex?mode=weekly", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "mode must be incremental or full")
}

func TestReindexRequiresWriter(t *testing.T) {
	h := newHarness(t)
	h.admission.principal.AccessLevel = models.AccessViewer

	w := h.do(t, http.MethodPost, "/v1/docs/reindex", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReindexWithInternalSecret(t *testing.T) {
	h := newHarness(t)

	req := map[string]string{"X-Internal-Secret": testSecret}
	w := h.do(t, http.MethodPost, "/v1/docs/reindex", nil, req)
	require.Equal(t, http.StatusAccepted, w.Code)
	// The internal path resolves the project itself, no key admission.
	assert.Zero(t, h.admission.admitted)
}

func TestReindexInternalSecretUnknownProject(t *testing.T) {
	h := newHarness(t)
	h.resolver.err = errors.New("project not found: ghost")

	req := map[string]string{"X-Internal-Secret": testSecret}
	w := h.do(t, http.MethodPost, "/v1/ghost/reindex", nil, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReindexStatus(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/v1/docs/reindex/"+h.jobs.job.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, h.jobs.job.ID.String(), body["id"])
}

func TestReindexStatusInvalidID(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/v1/docs/reindex/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReindexStatusUnknownJob(t *testing.T) {
	h := newHarness(t)
	h.jobs.getErr = errors.New("index job not found")

	w := h.do(t, http.MethodGet, "/v1/docs/reindex/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDemoAnalyticsRequiresSecret(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/v1/admin/demo-analytics", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDemoAnalytics(t *testing.T) {
	h := newHarness(t)
	h.usage.breakdown = []models.ToolUsage{
		{Tool: models.ToolContextQuery, Calls: 42, Errors: 1, AvgLatencyMs: 12.5, TotalTokens: 9000},
	}

	req := map[string]string{"X-Internal-Secret": testSecret}
	w := h.do(t, http.MethodGet, "/v1/admin/demo-analytics", nil, req)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.NotEmpty(t, body["since"])
	tools := body["tools"].([]interface{})
	require.Len(t, tools, 1)
	assert.Equal(t, "rlm_context_query", tools[0].(map[string]interface{})["tool"])
}
