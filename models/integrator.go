package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// IntegratorWorkspace is a partner's provisioning scope.
type IntegratorWorkspace struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Name      string    `json:"name" gorm:"not null"`
	Slug      string    `json:"slug" gorm:"uniqueIndex;not null"`
	OwnerID   string    `json:"owner_id" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (IntegratorWorkspace) TableName() string {
	return "rlm.integrator_workspaces"
}

// IntegratorClient is a downstream tenant provisioned by an integrator.
type IntegratorClient struct {
	ID          uuid.UUID        `json:"id" gorm:"type:uuid;primary_key"`
	WorkspaceID uuid.UUID        `json:"workspace_id" gorm:"type:uuid;index;not null"`
	ProjectID   uuid.UUID        `json:"project_id" gorm:"type:uuid;index;not null"`
	Name        string           `json:"name" gorm:"not null"`
	ExternalID  string           `json:"external_id" gorm:"index"`
	Bundle      IntegratorBundle `json:"bundle" gorm:"type:varchar(12);not null;default:'LITE'"`
	IsActive    bool             `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (IntegratorClient) TableName() string {
	return "rlm.integrator_clients"
}

// ClientAPIKey is a snipara_ic_ credential identifying an integrator client.
type ClientAPIKey struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	ClientID  uuid.UUID  `json:"client_id" gorm:"type:uuid;index;not null"`
	KeyHash   string     `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	KeyPrefix string     `json:"key_prefix" gorm:"type:varchar(12);index;not null"`
	Name      string     `json:"name" gorm:"not null"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ClientAPIKey) TableName() string {
	return "rlm.client_api_keys"
}

// WebhookEndpoint is an integrator's delivery target. Events are signed with
// HMAC-SHA256 over the raw body using the endpoint secret.
type WebhookEndpoint struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	WorkspaceID uuid.UUID      `json:"workspace_id" gorm:"type:uuid;index;not null"`
	URL         string         `json:"url" gorm:"not null"`
	Secret      string         `json:"-" gorm:"not null"`
	EventTypes  pq.StringArray `json:"event_types" gorm:"type:text[]"`
	IsActive    bool           `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (WebhookEndpoint) TableName() string {
	return "rlm.webhook_endpoints"
}

// WebhookDelivery records one delivery attempt chain.
type WebhookDelivery struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	EndpointID uuid.UUID  `json:"endpoint_id" gorm:"type:uuid;index;not null"`
	EventType  string     `json:"event_type" gorm:"type:varchar(40);not null"`
	Payload    string     `json:"payload" gorm:"type:text;not null"`
	Attempts   int        `json:"attempts" gorm:"not null;default:0"`
	Delivered  bool       `json:"delivered" gorm:"not null;default:false"`
	LastStatus int        `json:"last_status" gorm:"not null;default:0"`
	LastError  string     `json:"last_error,omitempty"`
	NextRetry  *time.Time `json:"next_retry,omitempty"`
	CreatedAt  time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (WebhookDelivery) TableName() string {
	return "rlm.webhook_deliveries"
}
