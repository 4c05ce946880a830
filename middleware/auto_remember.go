package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/snipara/rlm/engine"
	"github.com/snipara/rlm/models"
)

const (
	autoRememberCategory = "auto-remember"
	autoRememberTTLDays  = 30
	autoRememberMinChars = 20
	autoRememberMaxChars = 500
)

// autoRule shapes one tool's result into a memory record.
type autoRule struct {
	memType models.MemoryType
	extract func(raw json.RawMessage) string
}

// autoRules maps the tools whose successful calls are worth remembering.
// Extractors work from the call params; results are already summarized by
// the handler and carry too much corpus text to store verbatim.
var autoRules = map[models.ToolName]autoRule{
	models.ToolUploadDocument: {models.MemoryFact, func(raw json.RawMessage) string {
		var p models.UploadDocumentParams
		if json.Unmarshal(raw, &p) != nil {
			return ""
		}
		return fmt.Sprintf("Uploaded document %s (%d bytes)", p.Path, len(p.Content))
	}},
	models.ToolSyncDocuments: {models.MemoryFact, func(raw json.RawMessage) string {
		var p models.SyncDocumentsParams
		if json.Unmarshal(raw, &p) != nil {
			return ""
		}
		return fmt.Sprintf("Synced a batch of %d documents into the corpus", len(p.Documents))
	}},
	models.ToolStoreSummary: {models.MemoryLearning, func(raw json.RawMessage) string {
		var p models.StoreSummaryParams
		if json.Unmarshal(raw, &p) != nil {
			return ""
		}
		return fmt.Sprintf("Stored a %s summary for %s", p.SummaryType, p.DocumentPath)
	}},
	models.ToolDecompose: {models.MemoryLearning, func(raw json.RawMessage) string {
		var p struct {
			Query string `json:"query"`
		}
		if json.Unmarshal(raw, &p) != nil {
			return ""
		}
		return "Decomposed query into sub-queries: " + p.Query
	}},
	models.ToolPlan: {models.MemoryDecision, func(raw json.RawMessage) string {
		var p struct {
			Query string `json:"query"`
		}
		if json.Unmarshal(raw, &p) != nil {
			return ""
		}
		return "Planned execution steps for: " + p.Query
	}},
	models.ToolTaskComplete: {models.MemoryDecision, func(raw json.RawMessage) string {
		var p models.TaskCompleteParams
		if json.Unmarshal(raw, &p) != nil {
			return ""
		}
		outcome := "completed"
		if p.Success != nil && !*p.Success {
			outcome = "failed"
		}
		msg := fmt.Sprintf("Task %s %s in swarm %s", p.TaskID, outcome, p.SwarmName)
		if p.Result != "" {
			msg += ": " + p.Result
		}
		return msg
	}},
	models.ToolStateSet: {models.MemoryContext, func(raw json.RawMessage) string {
		var p models.StateSetParams
		if json.Unmarshal(raw, &p) != nil {
			return ""
		}
		return fmt.Sprintf("Shared state key %q updated by %s in swarm %s", p.Key, p.AgentID, p.SwarmName)
	}},
}

// AutoRemember synthesizes short memory records from successful tool calls
// on projects that opted in with memory_save_on_commit. It never fails the
// call it observes.
type AutoRemember struct {
	memories engine.MemoryStore
	log      *zap.Logger
}

func NewAutoRemember(memories engine.MemoryStore, log *zap.Logger) *AutoRemember {
	if log == nil {
		log = zap.NewNop()
	}
	return &AutoRemember{memories: memories, log: log}
}

// Observe runs after a successful tool call.
func (a *AutoRemember) Observe(ctx context.Context, hc *engine.HandlerContext, tool models.ToolName, raw json.RawMessage, _ *models.ToolResult) {
	if a.memories == nil || !hc.Settings.MemorySaveOnCommit {
		return
	}
	rule, ok := autoRules[tool]
	if !ok {
		return
	}

	content := rule.extract(raw)
	if len(content) < autoRememberMinChars {
		return
	}
	if len(content) > autoRememberMaxChars {
		content = content[:autoRememberMaxChars]
	}

	owner := engine.MemoryOwner{
		ProjectID: hc.ProjectID,
		TeamID:    hc.TeamID,
		UserID:    hc.UserID,
		AgentID:   hc.AgentID,
	}
	_, err := a.memories.Remember(ctx, owner, models.RememberParams{
		Content:  content,
		Type:     rule.memType,
		Scope:    models.ScopeProject,
		Category: autoRememberCategory,
		TTLDays:  autoRememberTTLDays,
	})
	if err != nil {
		a.log.Warn("auto-remember failed",
			zap.String("tool", string(tool)), zap.Error(err))
	}
}
