package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BeforeCreate hooks assign ids client-side so inserts behave the same on
// Postgres and on the sqlite databases the tests run against.

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (m *Team) BeforeCreate(*gorm.DB) error                { ensureID(&m.ID); return nil }
func (m *Subscription) BeforeCreate(*gorm.DB) error        { ensureID(&m.ID); return nil }
func (m *Project) BeforeCreate(*gorm.DB) error             { ensureID(&m.ID); return nil }
func (m *APIKey) BeforeCreate(*gorm.DB) error              { ensureID(&m.ID); return nil }
func (m *OAuthToken) BeforeCreate(*gorm.DB) error          { ensureID(&m.ID); return nil }
func (m *ProjectAccess) BeforeCreate(*gorm.DB) error       { ensureID(&m.ID); return nil }
func (m *AccessRequest) BeforeCreate(*gorm.DB) error       { ensureID(&m.ID); return nil }
func (m *SharedCollection) BeforeCreate(*gorm.DB) error    { ensureID(&m.ID); return nil }
func (m *ProjectSharedLink) BeforeCreate(*gorm.DB) error   { ensureID(&m.ID); return nil }
func (m *Document) BeforeCreate(*gorm.DB) error            { ensureID(&m.ID); return nil }
func (m *DocumentChunk) BeforeCreate(*gorm.DB) error       { ensureID(&m.ID); return nil }
func (m *Summary) BeforeCreate(*gorm.DB) error             { ensureID(&m.ID); return nil }
func (m *IndexJob) BeforeCreate(*gorm.DB) error            { ensureID(&m.ID); return nil }
func (m *AgentMemory) BeforeCreate(*gorm.DB) error         { ensureID(&m.ID); return nil }
func (m *Swarm) BeforeCreate(*gorm.DB) error               { ensureID(&m.ID); return nil }
func (m *SwarmAgent) BeforeCreate(*gorm.DB) error          { ensureID(&m.ID); return nil }
func (m *ResourceClaim) BeforeCreate(*gorm.DB) error       { ensureID(&m.ID); return nil }
func (m *SharedState) BeforeCreate(*gorm.DB) error         { ensureID(&m.ID); return nil }
func (m *SwarmTask) BeforeCreate(*gorm.DB) error           { ensureID(&m.ID); return nil }
func (m *UsageRecord) BeforeCreate(*gorm.DB) error         { ensureID(&m.ID); return nil }
func (m *AccessDenial) BeforeCreate(*gorm.DB) error        { ensureID(&m.ID); return nil }
func (m *IntegratorWorkspace) BeforeCreate(*gorm.DB) error { ensureID(&m.ID); return nil }
func (m *IntegratorClient) BeforeCreate(*gorm.DB) error    { ensureID(&m.ID); return nil }
func (m *ClientAPIKey) BeforeCreate(*gorm.DB) error        { ensureID(&m.ID); return nil }
func (m *WebhookEndpoint) BeforeCreate(*gorm.DB) error     { ensureID(&m.ID); return nil }
func (m *WebhookDelivery) BeforeCreate(*gorm.DB) error     { ensureID(&m.ID); return nil }
