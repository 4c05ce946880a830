package impl

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/snipara/rlm/engine/tokens"
	"github.com/snipara/rlm/models"
)

// SummaryStore persists document summaries, upserted on
// (document_id, summary_type, section_id).
type SummaryStore struct {
	db *gorm.DB
}

func NewSummaryStore(db *gorm.DB) *SummaryStore {
	return &SummaryStore{db: db}
}

func (s *SummaryStore) document(ctx context.Context, projectID, path string) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND path = ?", projectID, path).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return &doc, nil
}

func (s *SummaryStore) Upsert(ctx context.Context, projectID string, p models.StoreSummaryParams) (*models.Summary, error) {
	doc, err := s.document(ctx, projectID, p.DocumentPath)
	if err != nil {
		return nil, err
	}

	var existing models.Summary
	err = s.db.WithContext(ctx).
		Where("document_id = ? AND summary_type = ? AND section_id = ?",
			doc.ID, p.SummaryType, p.SectionID).
		First(&existing).Error
	switch {
	case err == nil:
		existing.Content = p.Content
		existing.TokenCount = tokens.Count(p.Content)
		if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return nil, fmt.Errorf("failed to update summary: %w", err)
		}
		return &existing, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		sum := models.Summary{
			ProjectID:   doc.ProjectID,
			DocumentID:  doc.ID,
			SummaryType: p.SummaryType,
			SectionID:   p.SectionID,
			Content:     p.Content,
			TokenCount:  tokens.Count(p.Content),
		}
		if err := s.db.WithContext(ctx).Create(&sum).Error; err != nil {
			return nil, fmt.Errorf("failed to create summary: %w", err)
		}
		return &sum, nil

	default:
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}
}

func (s *SummaryStore) List(ctx context.Context, projectID string, p models.GetSummariesParams) ([]models.Summary, error) {
	q := s.db.WithContext(ctx).Where("project_id = ?", projectID)
	if p.DocumentPath != "" {
		doc, err := s.document(ctx, projectID, p.DocumentPath)
		if err != nil {
			return nil, err
		}
		q = q.Where("document_id = ?", doc.ID)
	}
	if p.SummaryType != "" {
		q = q.Where("summary_type = ?", p.SummaryType)
	}

	var sums []models.Summary
	if err := q.Order("updated_at DESC").Find(&sums).Error; err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	return sums, nil
}

func (s *SummaryStore) Delete(ctx context.Context, projectID string, p models.DeleteSummaryParams) (bool, error) {
	doc, err := s.document(ctx, projectID, p.DocumentPath)
	if err != nil {
		return false, err
	}

	res := s.db.WithContext(ctx).
		Where("document_id = ? AND summary_type = ? AND section_id = ?",
			doc.ID, p.SummaryType, p.SectionID).
		Delete(&models.Summary{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete summary: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ForSections resolves stored summary text for section ids. When a section
// has multiple summary types, the shortest wins; prefer_summaries exists to
// save budget.
func (s *SummaryStore) ForSections(ctx context.Context, projectID string, sectionIDs []string) (map[string]string, error) {
	if len(sectionIDs) == 0 {
		return map[string]string{}, nil
	}

	var sums []models.Summary
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND section_id IN ?", projectID, sectionIDs).
		Find(&sums).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load section summaries: %w", err)
	}

	out := make(map[string]string, len(sums))
	for _, sum := range sums {
		if cur, ok := out[sum.SectionID]; ok && len(cur) <= len(sum.Content) {
			continue
		}
		out[sum.SectionID] = sum.Content
	}
	return out, nil
}
