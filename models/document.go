package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Document is one uploaded documentation file.
type Document struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ProjectID   uuid.UUID `json:"project_id" gorm:"type:uuid;index:idx_doc_path,unique;not null"`
	Path        string    `json:"path" gorm:"index:idx_doc_path,unique;not null"`
	Content     string    `json:"content" gorm:"type:text;not null"`
	ContentHash string    `json:"content_hash" gorm:"type:varchar(64);not null"`
	LineCount   int       `json:"line_count" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Document) TableName() string {
	return "rlm.documents"
}

// DocumentChunk is a fixed-bounded window over a document's text with its
// dense embedding. Chunks fold onto sections by line-range overlap.
type DocumentChunk struct {
	ID         uuid.UUID       `json:"id" gorm:"type:uuid;primary_key"`
	ProjectID  uuid.UUID       `json:"project_id" gorm:"type:uuid;index;not null"`
	DocumentID uuid.UUID       `json:"document_id" gorm:"type:uuid;index;not null"`
	StartLine  int             `json:"start_line" gorm:"not null"`
	EndLine    int             `json:"end_line" gorm:"not null"`
	Content    string          `json:"content" gorm:"type:text;not null"`
	TokenCount int             `json:"token_count" gorm:"not null;default:0"`
	Embedding  pgvector.Vector `json:"-" gorm:"type:vector(1024)"`
	CreatedAt  time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DocumentChunk) TableName() string {
	return "rlm.document_chunks"
}

// Summary is a stored summary of a document or one of its sections,
// upserted on (document_id, summary_type, section_id).
type Summary struct {
	ID          uuid.UUID   `json:"id" gorm:"type:uuid;primary_key"`
	ProjectID   uuid.UUID   `json:"project_id" gorm:"type:uuid;index;not null"`
	DocumentID  uuid.UUID   `json:"document_id" gorm:"type:uuid;index:idx_summary_key,unique;not null"`
	SummaryType SummaryType `json:"summary_type" gorm:"type:varchar(20);index:idx_summary_key,unique;not null"`
	SectionID   string      `json:"section_id" gorm:"index:idx_summary_key,unique;not null;default:''"`
	Content     string      `json:"content" gorm:"type:text;not null"`
	TokenCount  int         `json:"token_count" gorm:"not null;default:0"`
	CreatedAt   time.Time   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Summary) TableName() string {
	return "rlm.summaries"
}

// IndexJob is a background chunk-and-embed job. At most one PENDING job
// exists per project.
type IndexJob struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	ProjectID uuid.UUID      `json:"project_id" gorm:"type:uuid;index;not null"`
	Mode      string         `json:"mode" gorm:"type:varchar(20);not null;default:'incremental'"`
	Status    IndexJobStatus `json:"status" gorm:"type:varchar(20);index;not null;default:'PENDING'"`
	WorkerID  string         `json:"worker_id" gorm:"type:varchar(64)"`

	Progress           int    `json:"progress" gorm:"not null;default:0"`
	DocumentsProcessed int    `json:"documents_processed" gorm:"not null;default:0"`
	ChunksCreated      int    `json:"chunks_created" gorm:"not null;default:0"`
	RetryCount         int    `json:"retry_count" gorm:"not null;default:0"`
	MaxRetries         int    `json:"max_retries" gorm:"not null;default:3"`
	Error              string `json:"error,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (IndexJob) TableName() string {
	return "rlm.index_jobs"
}
