package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/snipara/rlm/models"
)

func handleInject(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.InjectParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = hc.SessionID
	}
	if sessionID == "" {
		sessionID = "default"
	}

	sc, err := e.sessions.Set(ctx, hc.ProjectID, sessionID, p.Content, p.Append)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"session_id":  sc.SessionID,
		"token_count": sc.TokenCount,
		"appended":    p.Append,
	}, nil
}

func handleContext(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p struct {
		SessionID string `json:"session_id,omitempty"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		p.SessionID = "default"
	}

	sc, err := e.sessions.Get(ctx, hc.ProjectID, p.SessionID)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return map[string]interface{}{"session_id": p.SessionID, "content": "", "token_count": 0}, nil
	}
	return map[string]interface{}{
		"session_id":  sc.SessionID,
		"content":     sc.Content,
		"token_count": sc.TokenCount,
		"updated_at":  sc.UpdatedAt,
	}, nil
}

func handleClearContext(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p struct {
		SessionID string `json:"session_id,omitempty"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		p.SessionID = "default"
	}

	if err := e.sessions.Clear(ctx, hc.ProjectID, p.SessionID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"session_id": p.SessionID, "cleared": true}, nil
}

func handleSettings(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p struct {
		Updates map[string]interface{} `json:"updates,omitempty"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	if len(p.Updates) == 0 {
		settings, err := e.projects.Settings(ctx, hc.ProjectID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"settings": settings}, nil
	}

	if !hc.AccessLevel.CanWrite() {
		return nil, ErrWriteAccessRequired
	}
	settings, err := e.projects.UpdateSettings(ctx, hc.ProjectID, p.Updates)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"settings": settings, "updated": true}, nil
}
