package impl

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipara/rlm/models"
)

func TestUploadCreatesDocument(t *testing.T) {
	store := NewDocumentStore(newTestDB(t), nil)
	projectID := uuid.NewString()

	res, err := store.Upload(context.Background(), projectID, models.UploadDocumentParams{
		Path:    "docs/api.md",
		Content: "# API\n\nendpoints",
	})
	require.NoError(t, err)
	assert.Equal(t, "created", res.Action)
	assert.Equal(t, "docs/api.md", res.Path)
	assert.NotEmpty(t, res.DocumentID)
	assert.Len(t, res.ContentHash, 64)
}

func TestUploadUnchangedSkipsWrite(t *testing.T) {
	store := NewDocumentStore(newTestDB(t), nil)
	projectID := uuid.NewString()
	ctx := context.Background()

	first, err := store.Upload(ctx, projectID, models.UploadDocumentParams{
		Path: "docs/api.md", Content: "# API",
	})
	require.NoError(t, err)

	second, err := store.Upload(ctx, projectID, models.UploadDocumentParams{
		Path: "docs/api.md", Content: "# API",
	})
	require.NoError(t, err)
	assert.Equal(t, "unchanged", second.Action)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.ContentHash, second.ContentHash)
}

func TestUploadUpdatesChangedContent(t *testing.T) {
	db := newTestDB(t)
	store := NewDocumentStore(db, nil)
	projectID := uuid.NewString()
	ctx := context.Background()

	first, err := store.Upload(ctx, projectID, models.UploadDocumentParams{
		Path: "docs/api.md", Content: "# API",
	})
	require.NoError(t, err)

	second, err := store.Upload(ctx, projectID, models.UploadDocumentParams{
		Path: "docs/api.md", Content: "# API\n\nnow with endpoints",
	})
	require.NoError(t, err)
	assert.Equal(t, "updated", second.Action)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.NotEqual(t, first.ContentHash, second.ContentHash)

	var doc models.Document
	require.NoError(t, db.Where("id = ?", second.DocumentID).First(&doc).Error)
	assert.Equal(t, 3, doc.LineCount)
}

func TestUploadIsolatesProjects(t *testing.T) {
	store := NewDocumentStore(newTestDB(t), nil)
	ctx := context.Background()

	a, err := store.Upload(ctx, uuid.NewString(), models.UploadDocumentParams{
		Path: "readme.md", Content: "alpha",
	})
	require.NoError(t, err)
	b, err := store.Upload(ctx, uuid.NewString(), models.UploadDocumentParams{
		Path: "readme.md", Content: "beta",
	})
	require.NoError(t, err)

	assert.Equal(t, "created", a.Action)
	assert.Equal(t, "created", b.Action)
	assert.NotEqual(t, a.DocumentID, b.DocumentID)
}

func TestSyncAppliesBatch(t *testing.T) {
	store := NewDocumentStore(newTestDB(t), nil)
	projectID := uuid.NewString()
	ctx := context.Background()

	_, err := store.Upload(ctx, projectID, models.UploadDocumentParams{Path: "a.md", Content: "a"})
	require.NoError(t, err)
	_, err = store.Upload(ctx, projectID, models.UploadDocumentParams{Path: "b.md", Content: "b"})
	require.NoError(t, err)

	res, err := store.Sync(ctx, projectID, models.SyncDocumentsParams{
		Documents: []models.UploadDocumentParams{
			{Path: "a.md", Content: "a v2"},
			{Path: "b.md", Content: "b"},
			{Path: "c.md", Content: "c"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Unchanged)
	assert.Zero(t, res.Deleted)
	assert.Len(t, res.Results, 3)
}

func TestSyncDeleteAbsent(t *testing.T) {
	db := newTestDB(t)
	store := NewDocumentStore(db, nil)
	projectID := uuid.NewString()
	ctx := context.Background()

	for _, path := range []string{"keep.md", "drop.md"} {
		_, err := store.Upload(ctx, projectID, models.UploadDocumentParams{Path: path, Content: path})
		require.NoError(t, err)
	}

	res, err := store.Sync(ctx, projectID, models.SyncDocumentsParams{
		Documents:    []models.UploadDocumentParams{{Path: "keep.md", Content: "keep.md"}},
		DeleteAbsent: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	var n int64
	db.Model(&models.Document{}).Where("project_id = ?", projectID).Count(&n)
	assert.EqualValues(t, 1, n)
}
