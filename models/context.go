package models

// ContextSection is one delivered section with full content.
type ContextSection struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	File           string  `json:"file"`
	StartLine      int     `json:"start_line"`
	EndLine        int     `json:"end_line"`
	Level          int     `json:"level"`
	RelevanceScore float64 `json:"relevance_score"`
	TokenCount     int     `json:"token_count"`
	Truncated      bool    `json:"truncated,omitempty"`
	FromSummary    bool    `json:"from_summary,omitempty"`
}

// ContextSectionRef is a pass-by-reference entry: a preview plus a chunk id
// the client must resolve through rlm_get_chunk.
type ContextSectionRef struct {
	ChunkID        string  `json:"chunk_id"`
	Title          string  `json:"title"`
	Preview        string  `json:"preview"`
	File           string  `json:"file"`
	StartLine      int     `json:"start_line"`
	EndLine        int     `json:"end_line"`
	RelevanceScore float64 `json:"relevance_score"`
	TokenCount     int     `json:"token_count"`
	KeywordScore   float64 `json:"keyword_score,omitempty"`
	SemanticScore  float64 `json:"semantic_score,omitempty"`
}

// SectionSuggestion points at a related section that did not fit the budget.
type SectionSuggestion struct {
	Title     string `json:"title"`
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// ContextQueryResult is the payload of rlm_context_query and rlm_ask.
type ContextQueryResult struct {
	Query       string              `json:"query"`
	Sections    []ContextSection    `json:"sections"`
	SectionRefs []ContextSectionRef `json:"section_refs,omitempty"`
	TotalTokens int                 `json:"total_tokens"`
	MaxTokens   int                 `json:"max_tokens"`
	Truncated   bool                `json:"truncated"`
	SearchMode  SearchMode          `json:"search_mode"`

	RoutingRecommendation string  `json:"routing_recommendation,omitempty"`
	RoutingConfidence     float64 `json:"routing_confidence,omitempty"`
	RoutingReason         string  `json:"routing_reason,omitempty"`
	QueryComplexity       string  `json:"query_complexity,omitempty"`

	SessionContextIncluded bool `json:"session_context_included,omitempty"`
	SessionContextTokens   int  `json:"session_context_tokens,omitempty"`
	SharedContextIncluded  bool `json:"shared_context_included,omitempty"`
	SharedContextTokens    int  `json:"shared_context_tokens,omitempty"`

	FirstQueryTipsIncluded bool                `json:"first_query_tips_included,omitempty"`
	Tips                   string              `json:"tips,omitempty"`
	Suggestions            []SectionSuggestion `json:"suggestions,omitempty"`
	SummariesUsed          int                 `json:"summaries_used,omitempty"`
	TimingMs               int64               `json:"timing_ms"`
}

// GetChunkResult resolves a reference-mode chunk id to full content.
type GetChunkResult struct {
	ChunkID    string `json:"chunk_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	File       string `json:"file"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	TokenCount int    `json:"token_count"`
}

// SearchMatch is one regex hit from rlm_search.
type SearchMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
	Section string `json:"section,omitempty"`
}

// SearchResult is the rlm_search payload.
type SearchResult struct {
	Pattern    string        `json:"pattern"`
	Matches    []SearchMatch `json:"matches"`
	TotalFound int           `json:"total_found"`
	Truncated  bool          `json:"truncated"`
}

// MultiQueryResult batches several context queries.
type MultiQueryResult struct {
	Results     []ContextQueryResult `json:"results"`
	TotalTokens int                  `json:"total_tokens"`
}

// ProjectQueryResult is one project's slice of a multi-project query.
type ProjectQueryResult struct {
	ProjectID   string           `json:"project_id"`
	ProjectSlug string           `json:"project_slug"`
	Sections    []ContextSection `json:"sections"`
	TotalTokens int              `json:"total_tokens"`
	Skipped     bool             `json:"skipped,omitempty"`
	SkipReason  string           `json:"skip_reason,omitempty"`
}

// MultiProjectQueryResult fans a query across every accessible project.
type MultiProjectQueryResult struct {
	Query          string               `json:"query"`
	Projects       []ProjectQueryResult `json:"projects"`
	TotalTokens    int                  `json:"total_tokens"`
	ProjectsQueried int                 `json:"projects_queried"`
	ProjectsSkipped int                 `json:"projects_skipped"`
}

// DecomposeResult splits a complex query into sub-queries.
type DecomposeResult struct {
	Query      string   `json:"query"`
	SubQueries []string `json:"sub_queries"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// PlanStep is one step of an execution plan.
type PlanStep struct {
	Order       int    `json:"order"`
	Description string `json:"description"`
	Query       string `json:"query,omitempty"`
}

// PlanResult is the rlm_plan payload.
type PlanResult struct {
	Query string     `json:"query"`
	Steps []PlanStep `json:"steps"`
}

// SectionListing is the rlm_sections payload entry.
type SectionListing struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	File      string `json:"file"`
	Level     int    `json:"level"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// ToolResult is the uniform envelope returned by the engine dispatcher.
type ToolResult struct {
	Data         interface{} `json:"data"`
	InputTokens  int         `json:"input_tokens"`
	OutputTokens int         `json:"output_tokens"`
}
