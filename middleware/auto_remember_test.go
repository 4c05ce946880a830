package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipara/rlm/engine"
	"github.com/snipara/rlm/models"
)

type memoryRecorder struct {
	owners []engine.MemoryOwner
	saved  []models.RememberParams
}

func (m *memoryRecorder) Remember(ctx context.Context, owner engine.MemoryOwner, p models.RememberParams) (*models.AgentMemory, error) {
	m.owners = append(m.owners, owner)
	m.saved = append(m.saved, p)
	return &models.AgentMemory{ID: uuid.New(), Content: p.Content}, nil
}

func (m *memoryRecorder) RememberBulk(ctx context.Context, owner engine.MemoryOwner, items []models.RememberParams) ([]models.AgentMemory, error) {
	return nil, nil
}

func (m *memoryRecorder) Recall(ctx context.Context, owner engine.MemoryOwner, p models.RecallParams) ([]models.RecalledMemory, error) {
	return nil, nil
}

func (m *memoryRecorder) List(ctx context.Context, owner engine.MemoryOwner, p models.MemoriesParams) ([]models.AgentMemory, error) {
	return nil, nil
}

func (m *memoryRecorder) Forget(ctx context.Context, owner engine.MemoryOwner, p models.ForgetParams) (int64, error) {
	return 0, nil
}

func optedInContext() *engine.HandlerContext {
	return &engine.HandlerContext{
		ProjectID: "proj-1",
		UserID:    "user-1",
		AgentID:   "agent-7",
		Settings:  models.ProjectSettings{MemorySaveOnCommit: true},
	}
}

func rawParams(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestAutoRememberUpload(t *testing.T) {
	rec := &memoryRecorder{}
	ar := NewAutoRemember(rec, nil)

	params := rawParams(t, models.UploadDocumentParams{Path: "docs/guide.md", Content: "hello world"})
	ar.Observe(context.Background(), optedInContext(), models.ToolUploadDocument, params, nil)

	require.Len(t, rec.saved, 1)
	saved := rec.saved[0]
	assert.Equal(t, "Uploaded document docs/guide.md (11 bytes)", saved.Content)
	assert.Equal(t, models.MemoryFact, saved.Type)
	assert.Equal(t, models.ScopeProject, saved.Scope)
	assert.Equal(t, "auto-remember", saved.Category)
	assert.Equal(t, 30, saved.TTLDays)
	assert.Equal(t, "agent-7", rec.owners[0].AgentID)
}

func TestAutoRememberRequiresOptIn(t *testing.T) {
	rec := &memoryRecorder{}
	ar := NewAutoRemember(rec, nil)

	hc := optedInContext()
	hc.Settings.MemorySaveOnCommit = false
	params := rawParams(t, models.UploadDocumentParams{Path: "docs/guide.md", Content: "hello"})
	ar.Observe(context.Background(), hc, models.ToolUploadDocument, params, nil)

	assert.Empty(t, rec.saved)
}

func TestAutoRememberIgnoresUnmappedTools(t *testing.T) {
	rec := &memoryRecorder{}
	ar := NewAutoRemember(rec, nil)

	params := rawParams(t, models.SearchParams{Pattern: "pricing"})
	ar.Observe(context.Background(), optedInContext(), models.ToolSearch, params, nil)

	assert.Empty(t, rec.saved)
}

func TestAutoRememberSkipsUnparsableParams(t *testing.T) {
	rec := &memoryRecorder{}
	ar := NewAutoRemember(rec, nil)

	ar.Observe(context.Background(), optedInContext(), models.ToolUploadDocument, json.RawMessage(`"nope"`), nil)
	assert.Empty(t, rec.saved)
}

func TestAutoRememberTaskOutcome(t *testing.T) {
	rec := &memoryRecorder{}
	ar := NewAutoRemember(rec, nil)

	failed := false
	params := rawParams(t, models.TaskCompleteParams{
		SwarmName: "builders", AgentID: "agent-1", TaskID: "task-9",
		Success: &failed, Result: "compile error in parser",
	})
	ar.Observe(context.Background(), optedInContext(), models.ToolTaskComplete, params, nil)

	require.Len(t, rec.saved, 1)
	assert.Equal(t, "Task task-9 failed in swarm builders: compile error in parser", rec.saved[0].Content)
	assert.Equal(t, models.MemoryDecision, rec.saved[0].Type)
}

func TestAutoRememberStateSet(t *testing.T) {
	rec := &memoryRecorder{}
	ar := NewAutoRemember(rec, nil)

	params := rawParams(t, models.StateSetParams{
		SwarmName: "builders", AgentID: "agent-1", Key: "phase", Value: "review",
	})
	ar.Observe(context.Background(), optedInContext(), models.ToolStateSet, params, nil)

	require.Len(t, rec.saved, 1)
	assert.Equal(t, `Shared state key "phase" updated by agent-1 in swarm builders`, rec.saved[0].Content)
	assert.Equal(t, models.MemoryContext, rec.saved[0].Type)
}

func TestAutoRememberTruncatesLongContent(t *testing.T) {
	rec := &memoryRecorder{}
	ar := NewAutoRemember(rec, nil)

	params := rawParams(t, models.TaskCompleteParams{
		SwarmName: "builders", AgentID: "agent-1", TaskID: "task-1",
		Result: strings.Repeat("x", 800),
	})
	ar.Observe(context.Background(), optedInContext(), models.ToolTaskComplete, params, nil)

	require.Len(t, rec.saved, 1)
	assert.Len(t, rec.saved[0].Content, 500)
}
