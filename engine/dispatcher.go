package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/snipara/rlm/engine/scoring"
	"github.com/snipara/rlm/engine/tokens"
	"github.com/snipara/rlm/models"
)

// Dispatch-level errors. Transports map these to HTTP / JSON-RPC codes.
var (
	ErrUnknownTool         = errors.New("unknown tool")
	ErrInvalidParams       = errors.New("invalid params")
	ErrNotFound            = errors.New("not found")
	ErrWriteAccessRequired = errors.New("write access required for this tool")
	ErrAdminAccessRequired = errors.New("admin access required for this tool")
	ErrPlanUpgradeRequired = errors.New("plan upgrade required for this tool")
	ErrConflict            = errors.New("version conflict")
)

// MemoryOwner scopes memory reads and writes to their principal.
type MemoryOwner struct {
	ProjectID string
	TeamID    string
	UserID    string
	AgentID   string
}

// IndexProvider loads (and caches) the per-project document index.
type IndexProvider interface {
	Index(ctx context.Context, projectID string) (*DocumentIndex, error)
	Invalidate(ctx context.Context, projectID string) error
}

// SemanticScorer produces chunk-level similarity hits for a query, and raw
// embeddings for the on-the-fly fallback path.
type SemanticScorer interface {
	ChunkHits(ctx context.Context, projectID, query string) ([]scoring.ChunkHit, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// SessionStore holds per-session injected context and the tips flag.
type SessionStore interface {
	Get(ctx context.Context, projectID, sessionID string) (*models.SessionContext, error)
	Set(ctx context.Context, projectID, sessionID, content string, appendContent bool) (*models.SessionContext, error)
	Clear(ctx context.Context, projectID, sessionID string) error
	MarkTipsShown(ctx context.Context, projectID, sessionID string) (alreadyShown bool, err error)
}

// MemoryStore persists agent memories and serves relevance recall.
type MemoryStore interface {
	Remember(ctx context.Context, owner MemoryOwner, p models.RememberParams) (*models.AgentMemory, error)
	RememberBulk(ctx context.Context, owner MemoryOwner, items []models.RememberParams) ([]models.AgentMemory, error)
	Recall(ctx context.Context, owner MemoryOwner, p models.RecallParams) ([]models.RecalledMemory, error)
	List(ctx context.Context, owner MemoryOwner, p models.MemoriesParams) ([]models.AgentMemory, error)
	Forget(ctx context.Context, owner MemoryOwner, p models.ForgetParams) (int64, error)
}

// DocumentStore owns the indexed corpus.
type DocumentStore interface {
	Upload(ctx context.Context, projectID string, p models.UploadDocumentParams) (*models.UploadResult, error)
	Sync(ctx context.Context, projectID string, p models.SyncDocumentsParams) (*models.SyncResult, error)
}

// SummaryStore persists document summaries.
type SummaryStore interface {
	Upsert(ctx context.Context, projectID string, p models.StoreSummaryParams) (*models.Summary, error)
	List(ctx context.Context, projectID string, p models.GetSummariesParams) ([]models.Summary, error)
	Delete(ctx context.Context, projectID string, p models.DeleteSummaryParams) (bool, error)
	// ForSections resolves stored summary text for the given section ids.
	ForSections(ctx context.Context, projectID string, sectionIDs []string) (map[string]string, error)
}

// SharedContextProvider resolves the shared-collection documents linked to
// a project.
type SharedContextProvider interface {
	SharedDocs(ctx context.Context, projectID string) ([]SharedDoc, error)
}

// Coordinator is the swarm surface: claims, versioned shared state, and the
// dependency-aware task queue.
type Coordinator interface {
	CreateSwarm(ctx context.Context, projectID string, p models.SwarmCreateParams) (*models.Swarm, error)
	Join(ctx context.Context, projectID string, p models.SwarmAgentParams) (*models.SwarmAgent, error)
	Leave(ctx context.Context, projectID string, p models.SwarmAgentParams) error
	Status(ctx context.Context, projectID, swarmName string) (*models.SwarmStatusResult, error)

	Acquire(ctx context.Context, projectID string, p models.ClaimParams) (*models.ClaimResult, error)
	Release(ctx context.Context, projectID string, p models.ReleaseParams) error
	CheckClaim(ctx context.Context, projectID string, p models.CheckClaimParams) (*models.CheckClaimResult, error)

	StateGet(ctx context.Context, projectID string, p models.StateGetParams) (*models.StateValue, error)
	StateSet(ctx context.Context, projectID string, p models.StateSetParams) (*models.StateSetResult, error)
	StatePoll(ctx context.Context, projectID string, p models.StatePollParams) (*models.StatePollResult, error)

	TaskCreate(ctx context.Context, projectID string, p models.TaskCreateParams) (*models.TaskView, error)
	TaskCreateBulk(ctx context.Context, projectID string, p models.TaskCreateBulkParams) ([]models.TaskView, error)
	TaskClaim(ctx context.Context, projectID string, p models.TaskClaimParams) (*models.TaskClaimResult, error)
	TaskComplete(ctx context.Context, projectID string, p models.TaskCompleteParams) (*models.TaskCompleteResult, error)
	TaskList(ctx context.Context, projectID string, p models.TaskListParams) ([]models.TaskView, error)
}

// AccessService records team access requests.
type AccessService interface {
	RequestAccess(ctx context.Context, projectID, teamID, requestedBy string, p models.RequestAccessParams) (*models.AccessRequest, error)
}

// ProjectService serves project metadata beyond the corpus itself.
type ProjectService interface {
	AccessibleProjects(ctx context.Context, teamID string) ([]models.Project, error)
	Settings(ctx context.Context, projectID string) (*models.ProjectSettings, error)
	UpdateSettings(ctx context.Context, projectID string, updates map[string]interface{}) (*models.ProjectSettings, error)
	Stats(ctx context.Context, projectID string) (*models.ProjectStats, error)
}

// Deps wires the dispatcher to its services.
type Deps struct {
	Logger    *zap.Logger
	Index     IndexProvider
	Semantic  SemanticScorer
	Sessions  SessionStore
	Memories  MemoryStore
	Documents DocumentStore
	Summaries SummaryStore
	Shared    SharedContextProvider
	Swarm     Coordinator
	Access    AccessService
	Projects  ProjectService
}

// Engine dispatches tool calls to their handlers.
type Engine struct {
	log       *zap.Logger
	index     IndexProvider
	semantic  SemanticScorer
	sessions  SessionStore
	memories  MemoryStore
	documents DocumentStore
	summaries SummaryStore
	shared    SharedContextProvider
	swarm     Coordinator
	access    AccessService
	projects  ProjectService
}

func New(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Engine{
		log:       d.Logger,
		index:     d.Index,
		semantic:  d.Semantic,
		sessions:  d.Sessions,
		memories:  d.Memories,
		documents: d.Documents,
		summaries: d.Summaries,
		shared:    d.Shared,
		swarm:     d.Swarm,
		access:    d.Access,
		projects:  d.Projects,
	}
}

// HandlerContext carries the admitted principal into a single tool call.
type HandlerContext struct {
	ProjectID   string
	ProjectSlug string
	UserID      string
	TeamID      string
	AgentID     string
	Plan        models.Plan
	AccessLevel models.AccessLevel
	Settings    models.ProjectSettings
	SessionID   string
}

func (hc *HandlerContext) owner() MemoryOwner {
	return MemoryOwner{
		ProjectID: hc.ProjectID,
		TeamID:    hc.TeamID,
		UserID:    hc.UserID,
		AgentID:   hc.AgentID,
	}
}

type handlerFunc func(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error)

// writeTools require EDITOR or better.
var writeTools = map[models.ToolName]struct{}{
	models.ToolUploadDocument: {},
	models.ToolSyncDocuments:  {},
	models.ToolForget:         {},
	models.ToolStoreSummary:   {},
	models.ToolDeleteSummary:  {},
	models.ToolTaskCreate:     {},
	models.ToolTaskCreateBulk: {},
}

// adminTools require ADMIN.
var adminTools = map[models.ToolName]struct{}{
	models.ToolSwarmCreate: {},
}

// proTools require a plan with semantic-search features.
var proTools = map[models.ToolName]struct{}{
	models.ToolMultiQuery:    {},
	models.ToolDecompose:     {},
	models.ToolStoreSummary:  {},
	models.ToolGetSummaries:  {},
	models.ToolDeleteSummary: {},
}

// teamTools require a plan with team features. All swarm tools live here.
var teamTools = map[models.ToolName]struct{}{
	models.ToolMultiProjectQuery: {},
	models.ToolPlan:              {},
	models.ToolSwarmCreate:       {}, models.ToolSwarmJoin: {}, models.ToolSwarmLeave: {}, models.ToolSwarmStatus: {},
	models.ToolClaimResource: {}, models.ToolReleaseResource: {}, models.ToolCheckClaim: {},
	models.ToolStateGet: {}, models.ToolStateSet: {}, models.ToolStatePoll: {},
	models.ToolTaskCreate: {}, models.ToolTaskCreateBulk: {}, models.ToolTaskClaim: {},
	models.ToolTaskComplete: {}, models.ToolTaskList: {},
}

// handlerRegistry is assembled at compile time; an unknown tool can only
// mean the client sent a name outside the catalog.
var handlerRegistry = map[models.ToolName]handlerFunc{
	models.ToolContextQuery:      handleContextQuery,
	models.ToolAsk:               handleAsk,
	models.ToolSearch:            handleSearch,
	models.ToolMultiQuery:        handleMultiQuery,
	models.ToolDecompose:         handleDecompose,
	models.ToolPlan:              handlePlan,
	models.ToolMultiProjectQuery: handleMultiProjectQuery,
	models.ToolGetChunk:          handleGetChunk,
	models.ToolSections:          handleSections,
	models.ToolStats:             handleStats,

	models.ToolInject:       handleInject,
	models.ToolContext:      handleContext,
	models.ToolClearContext: handleClearContext,
	models.ToolSettings:     handleSettings,

	models.ToolRemember:     handleRemember,
	models.ToolRememberBulk: handleRememberBulk,
	models.ToolRecall:       handleRecall,
	models.ToolMemories:     handleMemories,
	models.ToolForget:       handleForget,

	models.ToolUploadDocument: handleUploadDocument,
	models.ToolSyncDocuments:  handleSyncDocuments,
	models.ToolRequestAccess:  handleRequestAccess,
	models.ToolStoreSummary:   handleStoreSummary,
	models.ToolGetSummaries:   handleGetSummaries,
	models.ToolDeleteSummary:  handleDeleteSummary,

	models.ToolSwarmCreate:     handleSwarmCreate,
	models.ToolSwarmJoin:       handleSwarmJoin,
	models.ToolSwarmLeave:      handleSwarmLeave,
	models.ToolSwarmStatus:     handleSwarmStatus,
	models.ToolClaimResource:   handleClaimResource,
	models.ToolReleaseResource: handleReleaseResource,
	models.ToolCheckClaim:      handleCheckClaim,
	models.ToolStateGet:        handleStateGet,
	models.ToolStateSet:        handleStateSet,
	models.ToolStatePoll:       handleStatePoll,
	models.ToolTaskCreate:      handleTaskCreate,
	models.ToolTaskCreateBulk:  handleTaskCreateBulk,
	models.ToolTaskClaim:       handleTaskClaim,
	models.ToolTaskComplete:    handleTaskComplete,
	models.ToolTaskList:        handleTaskList,
}

// Execute runs one tool call end to end: authorization, handler, token
// accounting.
func (e *Engine) Execute(ctx context.Context, hc *HandlerContext, tool models.ToolName, raw json.RawMessage) (*models.ToolResult, error) {
	h, ok := handlerRegistry[tool]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
	if err := authorize(hc, tool); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	data, err := h(ctx, e, hc, raw)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &models.ToolResult{
		Data:         data,
		InputTokens:  tokens.Count(string(raw)),
		OutputTokens: tokens.Count(string(out)),
	}, nil
}

func authorize(hc *HandlerContext, tool models.ToolName) error {
	if _, ok := adminTools[tool]; ok && hc.AccessLevel != models.AccessAdmin {
		return ErrAdminAccessRequired
	}
	if _, ok := writeTools[tool]; ok && !hc.AccessLevel.CanWrite() {
		return ErrWriteAccessRequired
	}
	if _, ok := proTools[tool]; ok && !hc.Plan.HasSemanticSearch() {
		return fmt.Errorf("%w: %s needs PRO or higher", ErrPlanUpgradeRequired, tool)
	}
	if _, ok := teamTools[tool]; ok && !hc.Plan.HasTeamFeatures() {
		return fmt.Errorf("%w: %s needs TEAM or higher", ErrPlanUpgradeRequired, tool)
	}
	return nil
}

func decodeParams(raw json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
