package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snipara/rlm/engine"
	"github.com/snipara/rlm/engine/scoring"
	"github.com/snipara/rlm/middleware"
	"github.com/snipara/rlm/models"
	"github.com/snipara/rlm/services"
)

const (
	testProjectID = "6f1d3e0a-9c2b-4f51-8a7e-2d4b9c1e5f30"
	testSecret    = "internal-test-secret"
)

type fakeAdmission struct {
	principal *services.Principal
	err       error
	admitted  int
}

func (f *fakeAdmission) Admit(ctx context.Context, projectIDOrSlug, credential, clientIP string) (*services.Principal, error) {
	f.admitted++
	if f.err != nil {
		return nil, f.err
	}
	return f.principal, nil
}

func (f *fakeAdmission) AdmitTeam(ctx context.Context, teamIDOrSlug, credential, clientIP string) (*services.Principal, error) {
	f.admitted++
	if f.err != nil {
		return nil, f.err
	}
	return f.principal, nil
}

type fakeUsage struct {
	records   []*models.UsageRecord
	breakdown []models.ToolUsage
}

func (f *fakeUsage) Track(ctx context.Context, rec *models.UsageRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeUsage) RecordDenial(ctx context.Context, denial *models.AccessDenial) error {
	return nil
}

func (f *fakeUsage) MonthlyQueries(ctx context.Context, projectID string) (int, error) {
	return len(f.records), nil
}

func (f *fakeUsage) Summary(ctx context.Context, projectID string, principal *services.Principal) (*models.UsageSummary, error) {
	return &models.UsageSummary{
		Plan:             principal.Plan,
		QueriesThisMonth: len(f.records),
		MonthlyLimit:     principal.MonthlyLimit,
		RateLimit:        principal.RateLimitPerMinute,
	}, nil
}

func (f *fakeUsage) ToolBreakdown(ctx context.Context, since time.Time) ([]models.ToolUsage, error) {
	return f.breakdown, nil
}

type fakeProjects struct {
	settings models.ProjectSettings
	stats    models.ProjectStats
}

func (f *fakeProjects) AccessibleProjects(ctx context.Context, teamID string) ([]models.Project, error) {
	return nil, nil
}

func (f *fakeProjects) Settings(ctx context.Context, projectID string) (*models.ProjectSettings, error) {
	s := f.settings
	return &s, nil
}

func (f *fakeProjects) UpdateSettings(ctx context.Context, projectID string, updates map[string]interface{}) (*models.ProjectSettings, error) {
	s := f.settings
	return &s, nil
}

func (f *fakeProjects) Stats(ctx context.Context, projectID string) (*models.ProjectStats, error) {
	s := f.stats
	return &s, nil
}

type fakeMemoryStore struct {
	saved  []models.AgentMemory
	listed []models.AgentMemory
}

func (f *fakeMemoryStore) Remember(ctx context.Context, owner engine.MemoryOwner, p models.RememberParams) (*models.AgentMemory, error) {
	m := models.AgentMemory{
		ID:       uuid.New(),
		Scope:    p.Scope,
		Type:     p.Type,
		Content:  p.Content,
		Category: p.Category,
	}
	f.saved = append(f.saved, m)
	return &m, nil
}

func (f *fakeMemoryStore) RememberBulk(ctx context.Context, owner engine.MemoryOwner, items []models.RememberParams) ([]models.AgentMemory, error) {
	out := make([]models.AgentMemory, 0, len(items))
	for _, p := range items {
		m, err := f.Remember(ctx, owner, p)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeMemoryStore) Recall(ctx context.Context, owner engine.MemoryOwner, p models.RecallParams) ([]models.RecalledMemory, error) {
	return nil, nil
}

func (f *fakeMemoryStore) List(ctx context.Context, owner engine.MemoryOwner, p models.MemoriesParams) ([]models.AgentMemory, error) {
	return f.listed, nil
}

func (f *fakeMemoryStore) Forget(ctx context.Context, owner engine.MemoryOwner, p models.ForgetParams) (int64, error) {
	return 0, nil
}

type fakeJobs struct {
	job      *models.IndexJob
	existed  bool
	getErr   error
	lastMode string
}

func (f *fakeJobs) Enqueue(ctx context.Context, projectID, mode string) (*models.IndexJob, bool, error) {
	f.lastMode = mode
	return f.job, f.existed, nil
}

func (f *fakeJobs) Get(ctx context.Context, projectID string, jobID uuid.UUID) (*models.IndexJob, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.job, nil
}

type fakeResolver struct {
	project *models.Project
	err     error
}

func (f *fakeResolver) Resolve(ctx context.Context, idOrSlug string) (*models.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.project, nil
}

type stubIndex struct {
	idx *engine.DocumentIndex
}

func (s *stubIndex) Index(ctx context.Context, projectID string) (*engine.DocumentIndex, error) {
	return s.idx, nil
}

func (s *stubIndex) Invalidate(ctx context.Context, projectID string) error {
	return nil
}

type stubSemantic struct{}

func (stubSemantic) ChunkHits(ctx context.Context, projectID, query string) ([]scoring.ChunkHit, error) {
	return nil, fmt.Errorf("embedder offline")
}

func (stubSemantic) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedder offline")
}

type stubSessions struct{}

func (stubSessions) Get(ctx context.Context, projectID, sessionID string) (*models.SessionContext, error) {
	return nil, nil
}

func (stubSessions) Set(ctx context.Context, projectID, sessionID, content string, appendContent bool) (*models.SessionContext, error) {
	return &models.SessionContext{SessionID: sessionID, Content: content, TokenCount: len(content) / 4}, nil
}

func (stubSessions) Clear(ctx context.Context, projectID, sessionID string) error {
	return nil
}

func (stubSessions) MarkTipsShown(ctx context.Context, projectID, sessionID string) (bool, error) {
	return true, nil
}

type dispatchedEvent struct {
	workspaceID uuid.UUID
	eventType   string
	payload     interface{}
}

type fakeHooks struct {
	events []dispatchedEvent
}

func (f *fakeHooks) Dispatch(ctx context.Context, workspaceID uuid.UUID, eventType string, payload interface{}) {
	f.events = append(f.events, dispatchedEvent{workspaceID: workspaceID, eventType: eventType, payload: payload})
}

type harness struct {
	admission *fakeAdmission
	usage     *fakeUsage
	projects  *fakeProjects
	memories  *fakeMemoryStore
	jobs      *fakeJobs
	hooks     *fakeHooks
	resolver  *fakeResolver
	router    *gin.Engine
}

func testIndex() *engine.DocumentIndex {
	return engine.BuildIndex(testProjectID, []engine.IndexedDocument{
		{Path: "docs/overview.md", Content: "## Pricing Tiers\n\n$19 and up. FREE, PRO, TEAM, ENTERPRISE.\n\n## Architecture\n\nKeyword ranking with semantic fusion, fitted to a token budget."},
	})
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		admission: &fakeAdmission{
			principal: &services.Principal{
				KeyID:              uuid.New(),
				KeyPrefix:          "rlm_test0000",
				UserID:             "user-1",
				TeamID:             "team-1",
				ProjectID:          testProjectID,
				Plan:               models.PlanFree,
				AccessLevel:        models.AccessEditor,
				RateLimitPerMinute: 20,
				MonthlyLimit:       500,
			},
		},
		usage:    &fakeUsage{},
		projects: &fakeProjects{stats: models.ProjectStats{Documents: 1, Sections: 2}},
		memories: &fakeMemoryStore{},
		jobs: &fakeJobs{
			job: &models.IndexJob{
				ID:        uuid.New(),
				ProjectID: uuid.MustParse(testProjectID),
				Mode:      "incremental",
				Status:    models.JobPending,
			},
		},
		hooks: &fakeHooks{},
		resolver: &fakeResolver{
			project: &models.Project{ID: uuid.MustParse(testProjectID), Slug: "docs"},
		},
	}

	eng := engine.New(engine.Deps{
		Index:    &stubIndex{idx: testIndex()},
		Semantic: stubSemantic{},
		Sessions: stubSessions{},
	})

	remember := middleware.NewAutoRemember(h.memories, zap.NewNop())
	runner := NewRunner(zap.NewNop(), h.admission, eng, h.usage, h.projects, remember)

	mcp := NewMCPHandlers(runner)
	rest := NewRESTHandlers(runner, h.jobs, h.memories, h.resolver, testSecret)
	sse := NewSSEHandlers(runner)
	wellKnown := NewWellKnownHandlers("https://rlm.snipara.com")

	r := gin.New()
	r.POST("/mcp/team/:team", mcp.HandleTeam)
	r.POST("/mcp/:project", mcp.HandleProject)
	v1 := r.Group("/v1")
	v1.GET("/admin/demo-analytics", rest.DemoAnalytics)
	project := v1.Group("/:project")
	project.POST("/mcp", rest.ExecuteTool)
	project.GET("/mcp/sse", sse.Handle)
	project.POST("/mcp/sse", sse.Handle)
	project.GET("/context", rest.Context)
	project.GET("/limits", rest.Limits)
	project.GET("/stats", rest.Stats)
	project.GET("/memories", rest.ListMemories)
	project.POST("/memories", rest.CreateMemory)
	project.POST("/reindex", rest.Reindex)
	project.GET("/reindex/:job_id", rest.ReindexStatus)
	r.GET("/.well-known/oauth-authorization-server", wellKnown.OAuthAuthorizationServer)
	r.GET("/.well-known/ai-plugin.json", wellKnown.AIPlugin)

	h.router = r
	return h
}

// do issues one request against the harness router.
func (h *harness) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "rlm_test0000aaaabbbbcccc")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}
