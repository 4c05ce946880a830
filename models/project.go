package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProjectSettings is the per-project jsonb settings blob.
type ProjectSettings struct {
	SearchMode         SearchMode        `json:"search_mode,omitempty"`
	PreferSummaries    bool              `json:"prefer_summaries,omitempty"`
	MemorySaveOnCommit bool              `json:"memory_save_on_commit,omitempty"`
	MemoryInjectTypes  []MemoryType      `json:"memory_inject_types,omitempty"`
	SharedContext      bool              `json:"shared_context,omitempty"`
	QueryExpansions    map[string]string `json:"query_expansions,omitempty"`
}

func (s ProjectSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *ProjectSettings) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), s)
	}

	return json.Unmarshal(bytes, s)
}

// MemoryTypesOrDefault returns the configured auto-remember types, or the
// default DECISION/LEARNING pair.
// ExpansionTerms splits the comma-separated query_expansions values into
// the term lists the keyword expander consumes.
func (s ProjectSettings) ExpansionTerms() map[string][]string {
	if len(s.QueryExpansions) == 0 {
		return nil
	}
	out := make(map[string][]string, len(s.QueryExpansions))
	for key, csv := range s.QueryExpansions {
		var terms []string
		for _, t := range strings.Split(csv, ",") {
			if t = strings.TrimSpace(t); t != "" {
				terms = append(terms, strings.ToLower(t))
			}
		}
		out[strings.ToLower(key)] = terms
	}
	return out
}

func (s ProjectSettings) MemoryTypesOrDefault() []MemoryType {
	if len(s.MemoryInjectTypes) > 0 {
		return s.MemoryInjectTypes
	}
	return []MemoryType{MemoryDecision, MemoryLearning}
}

type Team struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Name      string    `json:"name" gorm:"not null"`
	Slug      string    `json:"slug" gorm:"uniqueIndex;not null"`
	OwnerID   string    `json:"owner_id" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Team) TableName() string {
	return "rlm.teams"
}

type Subscription struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	TeamID           uuid.UUID  `json:"team_id" gorm:"type:uuid;uniqueIndex;not null"`
	Plan             Plan       `json:"plan" gorm:"type:varchar(20);not null;default:'FREE'"`
	Status           string     `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
	CreatedAt        time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscription) TableName() string {
	return "rlm.subscriptions"
}

type Project struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	TeamID   uuid.UUID `json:"team_id" gorm:"type:uuid;index;not null"`
	Name     string    `json:"name" gorm:"not null"`
	Slug     string    `json:"slug" gorm:"uniqueIndex;not null"`
	OwnerID  string    `json:"owner_id" gorm:"type:varchar(255);not null"`
	IsPublic bool      `json:"is_public" gorm:"default:false"`

	Settings ProjectSettings `json:"settings" gorm:"type:jsonb;default:'{}'"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Project) TableName() string {
	return "rlm.projects"
}

// APIKey is a user or team credential. The raw key is shown once at creation;
// only the SHA-256 hash and the 12-char audit prefix are stored.
type APIKey struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	KeyHash   string     `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	KeyPrefix string     `json:"key_prefix" gorm:"type:varchar(12);index;not null"`
	Name      string     `json:"name" gorm:"not null"`
	UserID    *string    `json:"user_id,omitempty" gorm:"type:varchar(255);index"`
	TeamID    *uuid.UUID `json:"team_id,omitempty" gorm:"type:uuid;index"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (APIKey) TableName() string {
	return "rlm.api_keys"
}

// IsTeamKey reports whether the key authenticates a team rather than a user.
func (k *APIKey) IsTeamKey() bool {
	return k.TeamID != nil
}

// Valid reports whether the key is neither revoked nor expired.
func (k *APIKey) Valid(now time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return false
	}
	return true
}

// OAuthToken is a project-scoped access token issued by the console flow.
// The bearer string is a signed JWT; the row exists for revocation and audit.
type OAuthToken struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	TokenHash string     `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	Prefix    string     `json:"prefix" gorm:"type:varchar(12);index;not null"`
	UserID    string     `json:"user_id" gorm:"type:varchar(255);not null"`
	ProjectID uuid.UUID  `json:"project_id" gorm:"type:uuid;index;not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (OAuthToken) TableName() string {
	return "rlm.oauth_tokens"
}

// ProjectAccess records a team key's access level on a project. Absence of a
// row means the project default applies; an explicit NONE row is a denial.
type ProjectAccess struct {
	ID        uuid.UUID   `json:"id" gorm:"type:uuid;primary_key"`
	ProjectID uuid.UUID   `json:"project_id" gorm:"type:uuid;index:idx_project_access,unique;not null"`
	TeamID    uuid.UUID   `json:"team_id" gorm:"type:uuid;index:idx_project_access,unique;not null"`
	Level     AccessLevel `json:"level" gorm:"type:varchar(10);not null;default:'VIEWER'"`
	CreatedAt time.Time   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ProjectAccess) TableName() string {
	return "rlm.project_access"
}

// AccessRequest is a pending request for a level on a project.
type AccessRequest struct {
	ID        uuid.UUID   `json:"id" gorm:"type:uuid;primary_key"`
	ProjectID uuid.UUID   `json:"project_id" gorm:"type:uuid;index;not null"`
	TeamID    uuid.UUID   `json:"team_id" gorm:"type:uuid;index;not null"`
	Level     AccessLevel `json:"level" gorm:"type:varchar(10);not null"`
	Message   string      `json:"message"`
	Status    string      `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	CreatedAt time.Time   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (AccessRequest) TableName() string {
	return "rlm.access_requests"
}

// SharedCollection is a team-level document collection linked into projects
// for the shared-context budget slice.
type SharedCollection struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	TeamID    uuid.UUID      `json:"team_id" gorm:"type:uuid;index;not null"`
	Name      string         `json:"name" gorm:"not null"`
	Category  SharedCategory `json:"category" gorm:"type:varchar(20);not null;default:'REFERENCE'"`
	Content   string         `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SharedCollection) TableName() string {
	return "rlm.shared_collections"
}

// ProjectSharedLink links a shared collection into a project.
type ProjectSharedLink struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ProjectID    uuid.UUID `json:"project_id" gorm:"type:uuid;index:idx_shared_link,unique;not null"`
	CollectionID uuid.UUID `json:"collection_id" gorm:"type:uuid;index:idx_shared_link,unique;not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ProjectSharedLink) TableName() string {
	return "rlm.project_shared_links"
}
