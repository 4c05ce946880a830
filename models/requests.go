package models

import (
	"fmt"
)

// Tool parameter shapes. Each params struct applies its defaults in
// Normalize and rejects out-of-range input in Validate.

const (
	DefaultMaxTokens     = 4000
	MinMaxTokens         = 100
	MaxMaxTokens         = 100000
	AskTokenBudget       = 2500
	DefaultPerProjectHit = 3
	MaxBulkMemories      = 50
	DefaultClaimTTL      = 300
	DefaultRecallLimit   = 5
	DefaultMinRelevance  = 0.5
)

type ContextQueryParams struct {
	Query            string     `json:"query"`
	MaxTokens        int        `json:"max_tokens,omitempty"`
	SearchMode       SearchMode `json:"search_mode,omitempty"`
	PreferSummaries  *bool      `json:"prefer_summaries,omitempty"`
	ReturnReferences bool       `json:"return_references,omitempty"`
	SessionID        string     `json:"session_id,omitempty"`
	IncludeShared    *bool      `json:"include_shared,omitempty"`
}

func (p *ContextQueryParams) Normalize() {
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.SearchMode == "" {
		p.SearchMode = SearchModeHybrid
	}
}

func (p *ContextQueryParams) Validate() error {
	if p.Query == "" {
		return fmt.Errorf("query is required")
	}
	if p.MaxTokens < MinMaxTokens || p.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("max_tokens must be between %d and %d", MinMaxTokens, MaxMaxTokens)
	}
	switch p.SearchMode {
	case SearchModeKeyword, SearchModeSemantic, SearchModeHybrid:
	default:
		return fmt.Errorf("invalid search_mode: %s", p.SearchMode)
	}
	return nil
}

type AskParams struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

func (p *AskParams) Validate() error {
	if p.Question == "" {
		return fmt.Errorf("question is required")
	}
	return nil
}

type SearchParams struct {
	Pattern       string `json:"pattern"`
	MaxResults    int    `json:"max_results,omitempty"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
}

func (p *SearchParams) Normalize() {
	if p.MaxResults <= 0 || p.MaxResults > 200 {
		p.MaxResults = 50
	}
}

func (p *SearchParams) Validate() error {
	if p.Pattern == "" {
		return fmt.Errorf("pattern is required")
	}
	return nil
}

type MultiQueryParams struct {
	Queries   []string `json:"queries"`
	MaxTokens int      `json:"max_tokens,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

func (p *MultiQueryParams) Normalize() {
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultMaxTokens
	}
}

func (p *MultiQueryParams) Validate() error {
	if len(p.Queries) == 0 {
		return fmt.Errorf("queries is required")
	}
	if len(p.Queries) > 10 {
		return fmt.Errorf("at most 10 queries per batch")
	}
	return nil
}

type MultiProjectQueryParams struct {
	Query           string `json:"query"`
	MaxTokens       int    `json:"max_tokens,omitempty"`
	PerProjectLimit int    `json:"per_project_limit,omitempty"`
}

func (p *MultiProjectQueryParams) Normalize() {
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.PerProjectLimit <= 0 {
		p.PerProjectLimit = DefaultPerProjectHit
	}
}

func (p *MultiProjectQueryParams) Validate() error {
	if p.Query == "" {
		return fmt.Errorf("query is required")
	}
	return nil
}

type GetChunkParams struct {
	ChunkID string `json:"chunk_id"`
}

func (p *GetChunkParams) Validate() error {
	if p.ChunkID == "" {
		return fmt.Errorf("chunk_id is required")
	}
	return nil
}

type InjectParams struct {
	Content   string `json:"content"`
	SessionID string `json:"session_id,omitempty"`
	Append    bool   `json:"append,omitempty"`
}

func (p *InjectParams) Validate() error {
	if p.Content == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

type RememberParams struct {
	Content  string      `json:"content"`
	Type     MemoryType  `json:"type,omitempty"`
	Scope    MemoryScope `json:"scope,omitempty"`
	Category string      `json:"category,omitempty"`
	Tags     []string    `json:"tags,omitempty"`
	TTLDays  int         `json:"ttl_days,omitempty"`
}

func (p *RememberParams) Normalize() {
	if p.Type == "" {
		p.Type = MemoryFact
	}
	if p.Scope == "" {
		p.Scope = ScopeProject
	}
}

func (p *RememberParams) Validate() error {
	if p.Content == "" {
		return fmt.Errorf("content is required")
	}
	if p.TTLDays < 0 {
		return fmt.Errorf("ttl_days must be non-negative")
	}
	return nil
}

type RememberBulkParams struct {
	Items []RememberParams `json:"items"`
}

func (p *RememberBulkParams) Validate() error {
	if len(p.Items) == 0 {
		return fmt.Errorf("items is required")
	}
	if len(p.Items) > MaxBulkMemories {
		return fmt.Errorf("at most %d items per call", MaxBulkMemories)
	}
	for i := range p.Items {
		p.Items[i].Normalize()
		if err := p.Items[i].Validate(); err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
	}
	return nil
}

type RecallParams struct {
	Query          string      `json:"query"`
	Limit          int         `json:"limit,omitempty"`
	MinRelevance   float64     `json:"min_relevance,omitempty"`
	Type           MemoryType  `json:"type,omitempty"`
	Scope          MemoryScope `json:"scope,omitempty"`
	IncludeExpired bool        `json:"include_expired,omitempty"`
}

func (p *RecallParams) Normalize() {
	if p.Limit <= 0 {
		p.Limit = DefaultRecallLimit
	}
	if p.MinRelevance == 0 {
		p.MinRelevance = DefaultMinRelevance
	}
}

func (p *RecallParams) Validate() error {
	if p.Query == "" {
		return fmt.Errorf("query is required")
	}
	return nil
}

type MemoriesParams struct {
	Type           MemoryType  `json:"type,omitempty"`
	Scope          MemoryScope `json:"scope,omitempty"`
	Category       string      `json:"category,omitempty"`
	Limit          int         `json:"limit,omitempty"`
	IncludeExpired bool        `json:"include_expired,omitempty"`
}

func (p *MemoriesParams) Normalize() {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
}

type ForgetParams struct {
	MemoryID string     `json:"memory_id,omitempty"`
	Type     MemoryType `json:"type,omitempty"`
	Category string     `json:"category,omitempty"`
	OlderThanDays int   `json:"older_than_days,omitempty"`
}

func (p *ForgetParams) Validate() error {
	if p.MemoryID == "" && p.Type == "" && p.Category == "" && p.OlderThanDays == 0 {
		return fmt.Errorf("at least one filter is required")
	}
	return nil
}

type UploadDocumentParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (p *UploadDocumentParams) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("path is required")
	}
	if p.Content == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

type SyncDocumentsParams struct {
	Documents    []UploadDocumentParams `json:"documents"`
	DeleteAbsent bool                   `json:"delete_absent,omitempty"`
}

func (p *SyncDocumentsParams) Validate() error {
	if len(p.Documents) == 0 {
		return fmt.Errorf("documents is required")
	}
	for i := range p.Documents {
		if err := p.Documents[i].Validate(); err != nil {
			return fmt.Errorf("documents[%d]: %w", i, err)
		}
	}
	return nil
}

type RequestAccessParams struct {
	Level   AccessLevel `json:"level"`
	Message string      `json:"message,omitempty"`
}

func (p *RequestAccessParams) Normalize() {
	if p.Level == "" {
		p.Level = AccessViewer
	}
}

func (p *RequestAccessParams) Validate() error {
	switch p.Level {
	case AccessViewer, AccessEditor, AccessAdmin:
		return nil
	}
	return fmt.Errorf("invalid level: %s", p.Level)
}

type StoreSummaryParams struct {
	DocumentPath string      `json:"document_path"`
	Content      string      `json:"content"`
	SummaryType  SummaryType `json:"summary_type,omitempty"`
	SectionID    string      `json:"section_id,omitempty"`
}

func (p *StoreSummaryParams) Normalize() {
	if p.SummaryType == "" {
		p.SummaryType = SummaryMedium
	}
}

func (p *StoreSummaryParams) Validate() error {
	if p.DocumentPath == "" {
		return fmt.Errorf("document_path is required")
	}
	if p.Content == "" {
		return fmt.Errorf("content is required")
	}
	switch p.SummaryType {
	case SummaryShort, SummaryMedium, SummaryDetailed, SummaryKeywords:
		return nil
	}
	return fmt.Errorf("invalid summary_type: %s", p.SummaryType)
}

type GetSummariesParams struct {
	DocumentPath string      `json:"document_path"`
	SummaryType  SummaryType `json:"summary_type,omitempty"`
}

type DeleteSummaryParams struct {
	DocumentPath string      `json:"document_path"`
	SummaryType  SummaryType `json:"summary_type"`
	SectionID    string      `json:"section_id,omitempty"`
}

func (p *DeleteSummaryParams) Validate() error {
	if p.DocumentPath == "" {
		return fmt.Errorf("document_path is required")
	}
	if p.SummaryType == "" {
		return fmt.Errorf("summary_type is required")
	}
	return nil
}

type SwarmCreateParams struct {
	Name         string `json:"name"`
	MaxAgents    int    `json:"max_agents,omitempty"`
	TaskTimeout  int    `json:"task_timeout,omitempty"`
	ClaimTimeout int    `json:"claim_timeout,omitempty"`
}

func (p *SwarmCreateParams) Normalize() {
	if p.MaxAgents == 0 {
		p.MaxAgents = 10
	}
	if p.TaskTimeout == 0 {
		p.TaskTimeout = 300
	}
	if p.ClaimTimeout == 0 {
		p.ClaimTimeout = 600
	}
}

func (p *SwarmCreateParams) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.MaxAgents < 2 || p.MaxAgents > 50 {
		return fmt.Errorf("max_agents must be between 2 and 50")
	}
	return nil
}

type SwarmAgentParams struct {
	SwarmName string `json:"swarm_name"`
	AgentID   string `json:"agent_id"`
	Role      string `json:"role,omitempty"`
}

func (p *SwarmAgentParams) Validate() error {
	if p.SwarmName == "" {
		return fmt.Errorf("swarm_name is required")
	}
	if p.AgentID == "" {
		return fmt.Errorf("agent_id is required")
	}
	return nil
}

type ClaimParams struct {
	SwarmName    string `json:"swarm_name"`
	AgentID      string `json:"agent_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	TTLSeconds   int    `json:"ttl_seconds,omitempty"`
}

func (p *ClaimParams) Normalize() {
	if p.TTLSeconds <= 0 {
		p.TTLSeconds = DefaultClaimTTL
	}
}

func (p *ClaimParams) Validate() error {
	if p.SwarmName == "" || p.AgentID == "" {
		return fmt.Errorf("swarm_name and agent_id are required")
	}
	if p.ResourceType == "" || p.ResourceID == "" {
		return fmt.Errorf("resource_type and resource_id are required")
	}
	return nil
}

type ReleaseParams struct {
	SwarmName    string `json:"swarm_name"`
	AgentID      string `json:"agent_id"`
	ClaimID      string `json:"claim_id,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
}

func (p *ReleaseParams) Validate() error {
	if p.SwarmName == "" || p.AgentID == "" {
		return fmt.Errorf("swarm_name and agent_id are required")
	}
	if p.ClaimID == "" && (p.ResourceType == "" || p.ResourceID == "") {
		return fmt.Errorf("claim_id or resource_type/resource_id is required")
	}
	return nil
}

type CheckClaimParams struct {
	SwarmName    string `json:"swarm_name"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
}

func (p *CheckClaimParams) Validate() error {
	if p.SwarmName == "" || p.ResourceType == "" || p.ResourceID == "" {
		return fmt.Errorf("swarm_name, resource_type and resource_id are required")
	}
	return nil
}

type StateGetParams struct {
	SwarmName string `json:"swarm_name"`
	Key       string `json:"key"`
}

func (p *StateGetParams) Validate() error {
	if p.SwarmName == "" || p.Key == "" {
		return fmt.Errorf("swarm_name and key are required")
	}
	return nil
}

type StateSetParams struct {
	SwarmName       string      `json:"swarm_name"`
	AgentID         string      `json:"agent_id"`
	Key             string      `json:"key"`
	Value           interface{} `json:"value"`
	ExpectedVersion *int64      `json:"expected_version,omitempty"`
	TTLSeconds      int         `json:"ttl_seconds,omitempty"`
}

func (p *StateSetParams) Validate() error {
	if p.SwarmName == "" || p.AgentID == "" || p.Key == "" {
		return fmt.Errorf("swarm_name, agent_id and key are required")
	}
	return nil
}

type StatePollParams struct {
	SwarmName    string           `json:"swarm_name"`
	Keys         []string         `json:"keys"`
	LastVersions map[string]int64 `json:"last_versions,omitempty"`
}

func (p *StatePollParams) Validate() error {
	if p.SwarmName == "" {
		return fmt.Errorf("swarm_name is required")
	}
	if len(p.Keys) == 0 {
		return fmt.Errorf("keys is required")
	}
	return nil
}

type TaskCreateParams struct {
	SwarmName   string   `json:"swarm_name"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Deadline    string   `json:"deadline,omitempty"`
}

func (p *TaskCreateParams) Validate() error {
	if p.SwarmName == "" {
		return fmt.Errorf("swarm_name is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Priority < 0 || p.Priority > 100 {
		return fmt.Errorf("priority must be between 0 and 100")
	}
	return nil
}

type TaskCreateBulkParams struct {
	SwarmName string             `json:"swarm_name"`
	Tasks     []TaskCreateParams `json:"tasks"`
}

func (p *TaskCreateBulkParams) Validate() error {
	if p.SwarmName == "" {
		return fmt.Errorf("swarm_name is required")
	}
	if len(p.Tasks) == 0 {
		return fmt.Errorf("tasks is required")
	}
	for i := range p.Tasks {
		if p.Tasks[i].SwarmName == "" {
			p.Tasks[i].SwarmName = p.SwarmName
		}
		if err := p.Tasks[i].Validate(); err != nil {
			return fmt.Errorf("tasks[%d]: %w", i, err)
		}
	}
	return nil
}

type TaskClaimParams struct {
	SwarmName string `json:"swarm_name"`
	AgentID   string `json:"agent_id"`
	TaskID    string `json:"task_id,omitempty"`
}

func (p *TaskClaimParams) Validate() error {
	if p.SwarmName == "" || p.AgentID == "" {
		return fmt.Errorf("swarm_name and agent_id are required")
	}
	return nil
}

type TaskCompleteParams struct {
	SwarmName string `json:"swarm_name"`
	AgentID   string `json:"agent_id"`
	TaskID    string `json:"task_id"`
	Success   *bool  `json:"success,omitempty"`
	Result    string `json:"result,omitempty"`
}

func (p *TaskCompleteParams) Validate() error {
	if p.SwarmName == "" || p.AgentID == "" || p.TaskID == "" {
		return fmt.Errorf("swarm_name, agent_id and task_id are required")
	}
	return nil
}

type TaskListParams struct {
	SwarmName string     `json:"swarm_name"`
	Status    TaskStatus `json:"status,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

func (p *TaskListParams) Normalize() {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
}

func (p *TaskListParams) Validate() error {
	if p.SwarmName == "" {
		return fmt.Errorf("swarm_name is required")
	}
	return nil
}
