package impl

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/snipara/rlm/models"
)

// newTestDB opens an in-memory sqlite database with the rlm schema attached
// so the Postgres-style table names resolve.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec("ATTACH DATABASE ':memory:' AS rlm").Error)
	require.NoError(t, db.AutoMigrate(
		&models.Team{}, &models.Subscription{}, &models.Project{},
		&models.APIKey{}, &models.OAuthToken{}, &models.ProjectAccess{},
		&models.AccessRequest{},
		&models.Document{}, &models.DocumentChunk{}, &models.Summary{},
		&models.AgentMemory{}, &models.IndexJob{},
		&models.UsageRecord{}, &models.AccessDenial{},
		&models.IntegratorWorkspace{}, &models.IntegratorClient{},
		&models.ClientAPIKey{}, &models.WebhookEndpoint{}, &models.WebhookDelivery{},
	))
	return db
}
