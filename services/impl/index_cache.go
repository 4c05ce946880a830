package impl

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/snipara/rlm/engine"
	"github.com/snipara/rlm/models"
)

// IndexCache serves per-project document indexes, built from the stored
// corpus and cached in process. Any document mutation invalidates the
// project's entry; the next query rebuilds it.
type IndexCache struct {
	db  *gorm.DB
	log *zap.Logger

	mu      sync.RWMutex
	indexes map[string]*engine.DocumentIndex
}

func NewIndexCache(db *gorm.DB, log *zap.Logger) *IndexCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &IndexCache{
		db:      db,
		log:     log,
		indexes: make(map[string]*engine.DocumentIndex),
	}
}

// Index returns the project's index, building it on a cache miss.
func (c *IndexCache) Index(ctx context.Context, projectID string) (*engine.DocumentIndex, error) {
	c.mu.RLock()
	idx, ok := c.indexes[projectID]
	c.mu.RUnlock()
	if ok {
		return idx, nil
	}

	idx, err := c.build(ctx, projectID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// Another goroutine may have built it while we were loading; last
	// writer wins, both indexes are equivalent.
	c.indexes[projectID] = idx
	c.mu.Unlock()

	return idx, nil
}

// Invalidate drops the cached index for a project.
func (c *IndexCache) Invalidate(ctx context.Context, projectID string) error {
	c.mu.Lock()
	delete(c.indexes, projectID)
	c.mu.Unlock()
	c.log.Debug("index invalidated", zap.String("project_id", projectID))
	return nil
}

func (c *IndexCache) build(ctx context.Context, projectID string) (*engine.DocumentIndex, error) {
	var docs []models.Document
	if err := c.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("path ASC").
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	indexed := make([]engine.IndexedDocument, len(docs))
	for i, d := range docs {
		indexed[i] = engine.IndexedDocument{Path: d.Path, Content: d.Content}
	}
	idx := engine.BuildIndex(projectID, indexed)
	c.log.Debug("index built",
		zap.String("project_id", projectID),
		zap.Int("documents", len(docs)),
		zap.Int("sections", len(idx.Sections)))
	return idx, nil
}
