package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Swarm is a named coordination scope within a project.
type Swarm struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ProjectID uuid.UUID `json:"project_id" gorm:"type:uuid;index:idx_swarm_name,unique;not null"`
	Name      string    `json:"name" gorm:"index:idx_swarm_name,unique;not null"`
	MaxAgents int       `json:"max_agents" gorm:"not null;default:10"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:true"`

	// Default timeouts in seconds, applied when a call omits its own.
	TaskTimeout  int `json:"task_timeout" gorm:"not null;default:300"`
	ClaimTimeout int `json:"claim_timeout" gorm:"not null;default:600"`

	CreatedBy string    `json:"created_by" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Swarm) TableName() string {
	return "rlm.swarms"
}

// SwarmAgent is a member of a swarm, unique per (swarm_id, agent_id) while
// active.
type SwarmAgent struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	SwarmID       uuid.UUID `json:"swarm_id" gorm:"type:uuid;index:idx_swarm_agent,unique;not null"`
	AgentID       string    `json:"agent_id" gorm:"index:idx_swarm_agent,unique;not null"`
	Role          string    `json:"role" gorm:"type:varchar(64)"`
	IsActive      bool      `json:"is_active" gorm:"not null;default:true"`
	LastHeartbeat time.Time `json:"last_heartbeat" gorm:"not null;default:CURRENT_TIMESTAMP"`
	JoinedAt      time.Time `json:"joined_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SwarmAgent) TableName() string {
	return "rlm.swarm_agents"
}

// ResourceClaim is an exclusive lease on (resource_type, resource_id) within
// a swarm. Expired claims are reaped lazily on access.
type ResourceClaim struct {
	ID           uuid.UUID   `json:"id" gorm:"type:uuid;primary_key"`
	SwarmID      uuid.UUID   `json:"swarm_id" gorm:"type:uuid;index;not null"`
	AgentID      string      `json:"agent_id" gorm:"not null"`
	ResourceType string      `json:"resource_type" gorm:"type:varchar(64);index:idx_claim_resource;not null"`
	ResourceID   string      `json:"resource_id" gorm:"index:idx_claim_resource;not null"`
	Status       ClaimStatus `json:"status" gorm:"type:varchar(10);index;not null;default:'ACTIVE'"`
	ExpiresAt    time.Time   `json:"expires_at" gorm:"not null"`
	ReleasedAt   *time.Time  `json:"released_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ResourceClaim) TableName() string {
	return "rlm.resource_claims"
}

// SharedState is a versioned key/value pair supporting compare-and-swap via
// expected_version.
type SharedState struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	SwarmID   uuid.UUID      `json:"swarm_id" gorm:"type:uuid;index:idx_state_key,unique;not null"`
	Key       string         `json:"key" gorm:"index:idx_state_key,unique;not null"`
	Value     datatypes.JSON `json:"value" gorm:"type:jsonb;not null"`
	Version   int64          `json:"version" gorm:"not null;default:1"`
	UpdatedBy string         `json:"updated_by" gorm:"not null"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SharedState) TableName() string {
	return "rlm.shared_state"
}

// SwarmTask is a unit of queued work with optional dependencies.
type SwarmTask struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	SwarmID     uuid.UUID      `json:"swarm_id" gorm:"type:uuid;index;not null"`
	Title       string         `json:"title" gorm:"not null"`
	Description string         `json:"description"`
	Status      TaskStatus     `json:"status" gorm:"type:varchar(12);index;not null;default:'PENDING'"`
	Priority    int            `json:"priority" gorm:"not null;default:0"`
	DependsOn   datatypes.JSON `json:"depends_on,omitempty" gorm:"type:jsonb;default:'[]'"`

	AssignedTo *string    `json:"assigned_to,omitempty" gorm:"index"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	// ClaimExpiresAt bounds an IN_PROGRESS hold; past it the task returns
	// to PENDING on the next queue scan.
	ClaimExpiresAt *time.Time `json:"claim_expires_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Result         string     `json:"result,omitempty"`

	CreatedBy string    `json:"created_by" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SwarmTask) TableName() string {
	return "rlm.swarm_tasks"
}

// DependencyIDs decodes the depends_on jsonb list.
func (t *SwarmTask) DependencyIDs() []string {
	var ids []string
	if len(t.DependsOn) == 0 {
		return ids
	}
	_ = json.Unmarshal(t.DependsOn, &ids)
	return ids
}

// ConvertToJSON marshals a value into a jsonb column payload.
func ConvertToJSON(data interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(bytes), nil
}
