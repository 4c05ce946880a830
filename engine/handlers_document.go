package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/snipara/rlm/models"
)

var allowedDocumentSuffixes = []string{".md", ".txt", ".mdx"}

func validateDocumentPath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("%w: path must not contain '..'", ErrInvalidParams)
	}
	for _, suffix := range allowedDocumentSuffixes {
		if strings.HasSuffix(path, suffix) {
			return nil
		}
	}
	return fmt.Errorf("%w: path must end with one of %s", ErrInvalidParams, strings.Join(allowedDocumentSuffixes, ", "))
}

func handleUploadDocument(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.UploadDocumentParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := validateDocumentPath(p.Path); err != nil {
		return nil, err
	}

	res, err := e.documents.Upload(ctx, hc.ProjectID, p)
	if err != nil {
		return nil, err
	}
	if res.Action != "unchanged" {
		if err := e.index.Invalidate(ctx, hc.ProjectID); err != nil {
			e.log.Warn("index invalidation failed", zap.String("project_id", hc.ProjectID), zap.Error(err))
		}
	}
	return res, nil
}

func handleSyncDocuments(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.SyncDocumentsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	for _, d := range p.Documents {
		if err := validateDocumentPath(d.Path); err != nil {
			return nil, err
		}
	}

	res, err := e.documents.Sync(ctx, hc.ProjectID, p)
	if err != nil {
		return nil, err
	}
	if res.Created+res.Updated+res.Deleted > 0 {
		if err := e.index.Invalidate(ctx, hc.ProjectID); err != nil {
			e.log.Warn("index invalidation failed", zap.String("project_id", hc.ProjectID), zap.Error(err))
		}
	}
	return res, nil
}

func handleRequestAccess(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.RequestAccessParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if hc.TeamID == "" {
		return nil, fmt.Errorf("%w: access requests need a team credential", ErrInvalidParams)
	}

	req, err := e.access.RequestAccess(ctx, hc.ProjectID, hc.TeamID, hc.UserID, p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"request_id": req.ID,
		"level":      req.Level,
		"status":     req.Status,
	}, nil
}

func handleStoreSummary(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.StoreSummaryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	s, err := e.summaries.Upsert(ctx, hc.ProjectID, p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"summary_id":   s.ID,
		"summary_type": s.SummaryType,
		"section_id":   s.SectionID,
	}, nil
}

func handleGetSummaries(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.GetSummariesParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	summaries, err := e.summaries.List(ctx, hc.ProjectID, p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"summaries": summaries, "total": len(summaries)}, nil
}

func handleDeleteSummary(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.DeleteSummaryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	deleted, err := e.summaries.Delete(ctx, hc.ProjectID, p)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, fmt.Errorf("%w: summary", ErrNotFound)
	}
	return map[string]interface{}{"deleted": true}, nil
}
