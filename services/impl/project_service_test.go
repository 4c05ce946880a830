package impl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/snipara/rlm/models"
)

func projectFixture(t *testing.T) (*gorm.DB, models.Team, models.Project) {
	t.Helper()
	db := newTestDB(t)
	team := models.Team{Name: "Acme", Slug: "acme", OwnerID: "owner@acme.test"}
	require.NoError(t, db.Create(&team).Error)
	project := models.Project{
		TeamID: team.ID, Name: "Docs", Slug: "acme-docs", OwnerID: "owner@acme.test",
	}
	require.NoError(t, db.Create(&project).Error)
	return db, team, project
}

func TestUpdateSettingsMerges(t *testing.T) {
	db, _, project := projectFixture(t)
	svc := NewProjectService(db)
	ctx := context.Background()

	_, err := svc.UpdateSettings(ctx, project.ID.String(), map[string]interface{}{
		"search_mode": "semantic",
	})
	require.NoError(t, err)

	got, err := svc.UpdateSettings(ctx, project.ID.String(), map[string]interface{}{
		"prefer_summaries": true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SearchModeSemantic, got.SearchMode)
	assert.True(t, got.PreferSummaries)

	stored, err := svc.Settings(ctx, project.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.SearchModeSemantic, stored.SearchMode)
	assert.True(t, stored.PreferSummaries)
}

func TestUpdateSettingsRejectsUnknownKey(t *testing.T) {
	db, _, project := projectFixture(t)
	svc := NewProjectService(db)

	_, err := svc.UpdateSettings(context.Background(), project.ID.String(), map[string]interface{}{
		"search_mode": "keyword",
		"favorite":    true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown setting")

	// The rejected update left nothing behind.
	got, err := svc.Settings(context.Background(), project.ID.String())
	require.NoError(t, err)
	assert.Empty(t, got.SearchMode)
}

func TestAccessibleProjectsIncludesGrants(t *testing.T) {
	db, team, project := projectFixture(t)
	svc := NewProjectService(db)
	ctx := context.Background()

	other := models.Team{Name: "Partner", Slug: "partner", OwnerID: "p@partner.test"}
	require.NoError(t, db.Create(&other).Error)
	shared := models.Project{
		TeamID: other.ID, Name: "Shared", Slug: "partner-shared", OwnerID: "p@partner.test",
	}
	require.NoError(t, db.Create(&shared).Error)
	denied := models.Project{
		TeamID: other.ID, Name: "Private", Slug: "partner-private", OwnerID: "p@partner.test",
	}
	require.NoError(t, db.Create(&denied).Error)

	require.NoError(t, db.Create(&models.ProjectAccess{
		ProjectID: shared.ID, TeamID: team.ID, Level: models.AccessViewer,
	}).Error)
	require.NoError(t, db.Create(&models.ProjectAccess{
		ProjectID: denied.ID, TeamID: team.ID, Level: models.AccessNone,
	}).Error)

	got, err := svc.AccessibleProjects(ctx, team.ID.String())
	require.NoError(t, err)
	require.Len(t, got, 2)
	slugs := []string{got[0].Slug, got[1].Slug}
	assert.Contains(t, slugs, project.Slug)
	assert.Contains(t, slugs, shared.Slug)
}

func TestProjectStats(t *testing.T) {
	db, _, project := projectFixture(t)
	svc := NewProjectService(db)
	ctx := context.Background()

	docs := NewDocumentStore(db, nil)
	for _, path := range []string{"a.md", "b.md"} {
		_, err := docs.Upload(ctx, project.ID.String(), models.UploadDocumentParams{
			Path: path, Content: "content of " + path,
		})
		require.NoError(t, err)
	}

	stats, err := svc.Stats(ctx, project.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Zero(t, stats.Chunks)
	assert.Zero(t, stats.Memories)
	assert.Nil(t, stats.LastIndexedAt)
}

func TestRequestAccessDedupesPending(t *testing.T) {
	db, team, project := projectFixture(t)
	svc := NewAccessRequests(db)
	ctx := context.Background()

	first, err := svc.RequestAccess(ctx, project.ID.String(), team.ID.String(), "owner@acme.test",
		models.RequestAccessParams{Level: models.AccessViewer, Message: "read the docs"})
	require.NoError(t, err)

	second, err := svc.RequestAccess(ctx, project.ID.String(), team.ID.String(), "owner@acme.test",
		models.RequestAccessParams{Level: models.AccessEditor})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.AccessViewer, second.Level)

	var n int64
	db.Model(&models.AccessRequest{}).Count(&n)
	assert.EqualValues(t, 1, n)
}
