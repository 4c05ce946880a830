package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// The full model set must migrate on sqlite: ids come from the BeforeCreate
// hooks and timestamp defaults use CURRENT_TIMESTAMP, so no column carries a
// Postgres-only default expression.
func TestAllModelsMigrateOnSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Exec("ATTACH DATABASE ':memory:' AS rlm").Error)

	require.NoError(t, db.AutoMigrate(
		&Team{}, &Subscription{}, &Project{}, &APIKey{}, &OAuthToken{},
		&ProjectAccess{}, &AccessRequest{}, &SharedCollection{}, &ProjectSharedLink{},
		&Document{}, &DocumentChunk{}, &Summary{}, &AgentMemory{}, &IndexJob{},
		&UsageRecord{}, &AccessDenial{},
		&Swarm{}, &SwarmAgent{}, &ResourceClaim{}, &SharedState{}, &SwarmTask{},
		&IntegratorWorkspace{}, &IntegratorClient{}, &ClientAPIKey{},
		&WebhookEndpoint{}, &WebhookDelivery{},
	))

	doc := Document{
		ProjectID:   uuid.New(),
		Path:        "docs/guide.md",
		ContentHash: "abc123",
	}
	require.NoError(t, db.Create(&doc).Error)
	assert.NotEqual(t, uuid.Nil, doc.ID)

	var got Document
	require.NoError(t, db.First(&got, "id = ?", doc.ID).Error)
	assert.Equal(t, "docs/guide.md", got.Path)
}
