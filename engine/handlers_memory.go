package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/snipara/rlm/models"
)

func handleRemember(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.RememberParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	mem, err := e.memories.Remember(ctx, hc.owner(), p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"memory_id": mem.ID,
		"type":      mem.Type,
		"scope":     mem.Scope,
	}, nil
}

func handleRememberBulk(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.RememberBulkParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	mems, err := e.memories.RememberBulk(ctx, hc.owner(), p.Items)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(mems))
	for i, m := range mems {
		ids[i] = m.ID.String()
	}
	return map[string]interface{}{"stored": len(mems), "memory_ids": ids}, nil
}

func handleRecall(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.RecallParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	recalled, err := e.memories.Recall(ctx, hc.owner(), p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"memories": recalled, "total": len(recalled)}, nil
}

func handleMemories(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.MemoriesParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	p.Normalize()

	mems, err := e.memories.List(ctx, hc.owner(), p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"memories": mems, "total": len(mems)}, nil
}

func handleForget(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.ForgetParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	deleted, err := e.memories.Forget(ctx, hc.owner(), p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"deleted": deleted}, nil
}
