package impl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/snipara/rlm/models"
)

// DocumentStore owns the uploaded corpus. Uploads are idempotent on content
// hash; unchanged documents are reported without a write.
type DocumentStore struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewDocumentStore(db *gorm.DB, log *zap.Logger) *DocumentStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentStore{db: db, log: log}
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (d *DocumentStore) Upload(ctx context.Context, projectID string, p models.UploadDocumentParams) (*models.UploadResult, error) {
	return d.upload(d.db.WithContext(ctx), projectID, p)
}

func (d *DocumentStore) upload(tx *gorm.DB, projectID string, p models.UploadDocumentParams) (*models.UploadResult, error) {
	pid, err := uuid.Parse(projectID)
	if err != nil {
		return nil, fmt.Errorf("invalid project id: %w", err)
	}
	hash := contentHash(p.Content)

	var existing models.Document
	err = tx.Where("project_id = ? AND path = ?", projectID, p.Path).First(&existing).Error
	switch {
	case err == nil:
		if existing.ContentHash == hash {
			return &models.UploadResult{
				DocumentID:  existing.ID.String(),
				Path:        p.Path,
				Action:      "unchanged",
				ContentHash: hash,
				SizeBytes:   len(p.Content),
			}, nil
		}
		existing.Content = p.Content
		existing.ContentHash = hash
		existing.LineCount = strings.Count(p.Content, "\n") + 1
		if err := tx.Save(&existing).Error; err != nil {
			return nil, fmt.Errorf("failed to update document: %w", err)
		}
		return &models.UploadResult{
			DocumentID:  existing.ID.String(),
			Path:        p.Path,
			Action:      "updated",
			ContentHash: hash,
			SizeBytes:   len(p.Content),
		}, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		doc := models.Document{
			ProjectID:   pid,
			Path:        p.Path,
			Content:     p.Content,
			ContentHash: hash,
			LineCount:   strings.Count(p.Content, "\n") + 1,
		}
		if err := tx.Create(&doc).Error; err != nil {
			return nil, fmt.Errorf("failed to create document: %w", err)
		}
		return &models.UploadResult{
			DocumentID:  doc.ID.String(),
			Path:        p.Path,
			Action:      "created",
			ContentHash: hash,
			SizeBytes:   len(p.Content),
		}, nil

	default:
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
}

// Sync applies a batch of uploads in one transaction. With delete_absent,
// documents not named in the batch are removed.
func (d *DocumentStore) Sync(ctx context.Context, projectID string, p models.SyncDocumentsParams) (*models.SyncResult, error) {
	res := &models.SyncResult{}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		paths := make([]string, 0, len(p.Documents))
		for _, doc := range p.Documents {
			one, err := d.upload(tx, projectID, doc)
			if err != nil {
				return err
			}
			paths = append(paths, doc.Path)
			res.Results = append(res.Results, *one)
			switch one.Action {
			case "created":
				res.Created++
			case "updated":
				res.Updated++
			default:
				res.Unchanged++
			}
		}

		if p.DeleteAbsent {
			del := tx.Where("project_id = ? AND path NOT IN ?", projectID, paths).
				Delete(&models.Document{})
			if del.Error != nil {
				return fmt.Errorf("failed to delete absent documents: %w", del.Error)
			}
			res.Deleted = int(del.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.log.Info("documents synced",
		zap.String("project_id", projectID),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("deleted", res.Deleted))
	return res, nil
}
