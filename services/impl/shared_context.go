package impl

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/snipara/rlm/engine"
	"github.com/snipara/rlm/models"
)

// SharedContextStore resolves the shared collections linked into a project.
type SharedContextStore struct {
	db *gorm.DB
}

func NewSharedContextStore(db *gorm.DB) *SharedContextStore {
	return &SharedContextStore{db: db}
}

func (s *SharedContextStore) SharedDocs(ctx context.Context, projectID string) ([]engine.SharedDoc, error) {
	var collections []models.SharedCollection
	err := s.db.WithContext(ctx).
		Joins("JOIN rlm.project_shared_links l ON l.collection_id = rlm.shared_collections.id").
		Where("l.project_id = ?", projectID).
		Order("rlm.shared_collections.name ASC").
		Find(&collections).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load shared collections: %w", err)
	}

	docs := make([]engine.SharedDoc, 0, len(collections))
	for _, c := range collections {
		docs = append(docs, engine.SharedDoc{
			Category: c.Category,
			Title:    c.Name,
			Content:  c.Content,
		})
	}
	return docs, nil
}
