package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord logs one tool invocation for accounting and analytics.
type UsageRecord struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ProjectID    uuid.UUID `json:"project_id" gorm:"type:uuid;index:idx_usage_month;not null"`
	Tool         ToolName  `json:"tool" gorm:"type:varchar(40);index;not null"`
	InputTokens  int       `json:"input_tokens" gorm:"not null;default:0"`
	OutputTokens int       `json:"output_tokens" gorm:"not null;default:0"`
	LatencyMs    int       `json:"latency_ms" gorm:"not null;default:0"`
	Success      bool      `json:"success" gorm:"not null;default:true"`
	Error        string    `json:"error,omitempty"`
	KeyPrefix    string    `json:"key_prefix,omitempty" gorm:"type:varchar(12)"`
	CreatedAt    time.Time `json:"created_at" gorm:"index:idx_usage_month;not null;default:CURRENT_TIMESTAMP"`
}

func (UsageRecord) TableName() string {
	return "rlm.usage_records"
}

// AccessDenial logs a 403 on a project, feeding the anti-scan tracker.
type AccessDenial struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ProjectID uuid.UUID `json:"project_id" gorm:"type:uuid;index;not null"`
	KeyPrefix string    `json:"key_prefix" gorm:"type:varchar(12);index;not null"`
	Reason    string    `json:"reason" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (AccessDenial) TableName() string {
	return "rlm.access_denials"
}

// UsageSummary is the month-to-date aggregate returned by the limits surface.
type UsageSummary struct {
	Plan            Plan  `json:"plan"`
	QueriesThisMonth int  `json:"queries_this_month"`
	MonthlyLimit    int   `json:"monthly_limit"`
	RateLimit       int   `json:"rate_limit_per_minute"`
	TokensThisMonth int64 `json:"tokens_this_month"`
}

// ToolUsage is one row of the per-tool analytics breakdown.
type ToolUsage struct {
	Tool         ToolName `json:"tool"`
	Calls        int64    `json:"calls"`
	Errors       int64    `json:"errors"`
	AvgLatencyMs float64  `json:"avg_latency_ms"`
	TotalTokens  int64    `json:"total_tokens"`
}

// ProjectStats is the corpus shape returned by rlm_stats and the REST stats
// endpoint.
type ProjectStats struct {
	Documents      int       `json:"documents"`
	Sections       int       `json:"sections"`
	Chunks         int       `json:"chunks"`
	TotalLines     int       `json:"total_lines"`
	TotalTokens    int       `json:"total_tokens"`
	Memories       int       `json:"memories"`
	Summaries      int       `json:"summaries"`
	LastIndexedAt  *time.Time `json:"last_indexed_at,omitempty"`
}
