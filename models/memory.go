package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// AgentMemory is a stored memory record recallable by scope and relevance.
type AgentMemory struct {
	ID        uuid.UUID   `json:"id" gorm:"type:uuid;primary_key"`
	ProjectID uuid.UUID   `json:"project_id" gorm:"type:uuid;index;not null"`
	Scope     MemoryScope `json:"scope" gorm:"type:varchar(10);index;not null;default:'PROJECT'"`
	Type      MemoryType  `json:"type" gorm:"type:varchar(12);index;not null"`
	Content   string      `json:"content" gorm:"type:text;not null"`
	Category  string      `json:"category,omitempty" gorm:"type:varchar(64);index"`
	Tags      pq.StringArray `json:"tags,omitempty" gorm:"type:text[]"`
	Source    string      `json:"source" gorm:"type:varchar(20);not null;default:'manual'"`

	AgentID *string `json:"agent_id,omitempty" gorm:"type:varchar(255);index"`
	UserID  *string `json:"user_id,omitempty" gorm:"type:varchar(255);index"`

	Embedding *pgvector.Vector `json:"-" gorm:"type:vector(1024)"`

	ExpiresAt *time.Time `json:"expires_at,omitempty" gorm:"index"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (AgentMemory) TableName() string {
	return "rlm.agent_memories"
}

// Expired reports whether the memory's TTL has elapsed.
func (m *AgentMemory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// RecalledMemory is a memory with its recall relevance attached.
type RecalledMemory struct {
	ID        uuid.UUID  `json:"id"`
	Type      MemoryType `json:"type"`
	Scope     MemoryScope `json:"scope"`
	Content   string     `json:"content"`
	Category  string     `json:"category,omitempty"`
	Relevance float64    `json:"relevance"`
	CreatedAt time.Time  `json:"created_at"`
}

// SessionContext is the per-session injected context kept in redis.
type SessionContext struct {
	SessionID  string    `json:"session_id"`
	ProjectID  uuid.UUID `json:"project_id"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	TipsShown  bool      `json:"tips_shown"`
	UpdatedAt  time.Time `json:"updated_at"`
}
