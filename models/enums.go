package models

// Plan is the billing tier resolved from a team's active subscription.
type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanPro        Plan = "PRO"
	PlanTeam       Plan = "TEAM"
	PlanEnterprise Plan = "ENTERPRISE"
	// PlanPartner is an internal tier used for integrator clients. It is
	// never stored on a subscription row.
	PlanPartner Plan = "PARTNER"
)

// HasSemanticSearch reports whether the plan can run vector search.
func (p Plan) HasSemanticSearch() bool {
	return p == PlanPro || p == PlanTeam || p == PlanEnterprise || p == PlanPartner
}

// HasTeamFeatures reports whether the plan can use cross-project query,
// planning and swarm tools.
func (p Plan) HasTeamFeatures() bool {
	return p == PlanTeam || p == PlanEnterprise || p == PlanPartner
}

// HasSummaries reports whether the plan can store document summaries.
func (p Plan) HasSummaries() bool {
	return p == PlanPro || p == PlanTeam || p == PlanEnterprise || p == PlanPartner
}

// AccessLevel is a team key's granted access to a project.
type AccessLevel string

const (
	AccessNone   AccessLevel = "NONE"
	AccessViewer AccessLevel = "VIEWER"
	AccessEditor AccessLevel = "EDITOR"
	AccessAdmin  AccessLevel = "ADMIN"
)

// CanWrite reports whether the level allows mutating tools.
func (a AccessLevel) CanWrite() bool {
	return a == AccessEditor || a == AccessAdmin
}

// SearchMode selects the ranking strategy for a context query.
type SearchMode string

const (
	SearchModeKeyword  SearchMode = "keyword"
	SearchModeSemantic SearchMode = "semantic"
	SearchModeHybrid   SearchMode = "hybrid"
)

// SummaryType is the granularity of a stored document summary.
type SummaryType string

const (
	SummaryShort    SummaryType = "SHORT"
	SummaryMedium   SummaryType = "MEDIUM"
	SummaryDetailed SummaryType = "DETAILED"
	SummaryKeywords SummaryType = "KEYWORDS"
)

// MemoryType categorizes an agent memory record.
type MemoryType string

const (
	MemoryFact       MemoryType = "FACT"
	MemoryDecision   MemoryType = "DECISION"
	MemoryLearning   MemoryType = "LEARNING"
	MemoryPreference MemoryType = "PREFERENCE"
	MemoryTodo       MemoryType = "TODO"
	MemoryContext    MemoryType = "CONTEXT"
)

// MemoryScope bounds who can recall a memory.
type MemoryScope string

const (
	ScopeAgent   MemoryScope = "AGENT"
	ScopeProject MemoryScope = "PROJECT"
	ScopeTeam    MemoryScope = "TEAM"
	ScopeUser    MemoryScope = "USER"
)

// SharedCategory orders shared-context collections by precedence.
type SharedCategory string

const (
	SharedMandatory     SharedCategory = "MANDATORY"
	SharedBestPractices SharedCategory = "BEST_PRACTICES"
	SharedGuidelines    SharedCategory = "GUIDELINES"
	SharedReference     SharedCategory = "REFERENCE"
)

// TaskStatus is the swarm task state machine.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
)

// ClaimStatus is the lifecycle of a resource claim.
type ClaimStatus string

const (
	ClaimActive   ClaimStatus = "ACTIVE"
	ClaimReleased ClaimStatus = "RELEASED"
	ClaimExpired  ClaimStatus = "EXPIRED"
)

// IndexJobStatus is the background index job state machine.
type IndexJobStatus string

const (
	JobPending   IndexJobStatus = "PENDING"
	JobRunning   IndexJobStatus = "RUNNING"
	JobCompleted IndexJobStatus = "COMPLETED"
	JobFailed    IndexJobStatus = "FAILED"
)

// IntegratorBundle is the quota bundle of a provisioned integrator client.
type IntegratorBundle string

const (
	BundleLite      IntegratorBundle = "LITE"
	BundleStandard  IntegratorBundle = "STANDARD"
	BundleUnlimited IntegratorBundle = "UNLIMITED"
)

// MonthlyQueries returns the bundle's query ceiling, or -1 for unlimited.
func (b IntegratorBundle) MonthlyQueries() int {
	switch b {
	case BundleLite:
		return 2000
	case BundleStandard:
		return 20000
	default:
		return -1
	}
}

// ToolName enumerates every tool exposed over MCP and the REST surface.
type ToolName string

const (
	ToolAsk               ToolName = "rlm_ask"
	ToolContextQuery      ToolName = "rlm_context_query"
	ToolSearch            ToolName = "rlm_search"
	ToolMultiQuery        ToolName = "rlm_multi_query"
	ToolDecompose         ToolName = "rlm_decompose"
	ToolPlan              ToolName = "rlm_plan"
	ToolMultiProjectQuery ToolName = "rlm_multi_project_query"
	ToolGetChunk          ToolName = "rlm_get_chunk"
	ToolSections          ToolName = "rlm_sections"
	ToolStats             ToolName = "rlm_stats"

	ToolInject       ToolName = "rlm_inject"
	ToolContext      ToolName = "rlm_context"
	ToolClearContext ToolName = "rlm_clear_context"

	ToolRemember     ToolName = "rlm_remember"
	ToolRememberBulk ToolName = "rlm_remember_bulk"
	ToolRecall       ToolName = "rlm_recall"
	ToolMemories     ToolName = "rlm_memories"
	ToolForget       ToolName = "rlm_forget"

	ToolUploadDocument ToolName = "rlm_upload_document"
	ToolSyncDocuments  ToolName = "rlm_sync_documents"
	ToolRequestAccess  ToolName = "rlm_request_access"
	ToolSettings       ToolName = "rlm_settings"

	ToolStoreSummary  ToolName = "rlm_store_summary"
	ToolGetSummaries  ToolName = "rlm_get_summaries"
	ToolDeleteSummary ToolName = "rlm_delete_summary"

	ToolSwarmCreate     ToolName = "rlm_swarm_create"
	ToolSwarmJoin       ToolName = "rlm_swarm_join"
	ToolSwarmLeave      ToolName = "rlm_swarm_leave"
	ToolSwarmStatus     ToolName = "rlm_swarm_status"
	ToolClaimResource   ToolName = "rlm_claim_resource"
	ToolReleaseResource ToolName = "rlm_release_resource"
	ToolCheckClaim      ToolName = "rlm_check_claim"
	ToolStateGet        ToolName = "rlm_state_get"
	ToolStateSet        ToolName = "rlm_state_set"
	ToolStatePoll       ToolName = "rlm_state_poll"
	ToolTaskCreate      ToolName = "rlm_task_create"
	ToolTaskCreateBulk  ToolName = "rlm_task_create_bulk"
	ToolTaskClaim       ToolName = "rlm_task_claim"
	ToolTaskComplete    ToolName = "rlm_task_complete"
	ToolTaskList        ToolName = "rlm_task_list"
)

// AllTools lists the catalog in advertisement order.
func AllTools() []ToolName {
	return []ToolName{
		ToolAsk, ToolContextQuery, ToolSearch, ToolMultiQuery, ToolDecompose,
		ToolPlan, ToolMultiProjectQuery, ToolGetChunk, ToolSections, ToolStats,
		ToolInject, ToolContext, ToolClearContext,
		ToolRemember, ToolRememberBulk, ToolRecall, ToolMemories, ToolForget,
		ToolUploadDocument, ToolSyncDocuments, ToolRequestAccess, ToolSettings,
		ToolStoreSummary, ToolGetSummaries, ToolDeleteSummary,
		ToolSwarmCreate, ToolSwarmJoin, ToolSwarmLeave, ToolSwarmStatus,
		ToolClaimResource, ToolReleaseResource, ToolCheckClaim,
		ToolStateGet, ToolStateSet, ToolStatePoll,
		ToolTaskCreate, ToolTaskCreateBulk, ToolTaskClaim, ToolTaskComplete,
		ToolTaskList,
	}
}
