package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/snipara/rlm/models"
)

func handleSwarmCreate(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.SwarmCreateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	swarm, err := e.swarm.CreateSwarm(ctx, hc.ProjectID, p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"swarm_id":      swarm.ID,
		"name":          swarm.Name,
		"max_agents":    swarm.MaxAgents,
		"task_timeout":  swarm.TaskTimeout,
		"claim_timeout": swarm.ClaimTimeout,
	}, nil
}

func handleSwarmJoin(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.SwarmAgentParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	agent, err := e.swarm.Join(ctx, hc.ProjectID, p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"swarm_name": p.SwarmName,
		"agent_id":   agent.AgentID,
		"role":       agent.Role,
		"joined":     true,
	}, nil
}

func handleSwarmLeave(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.SwarmAgentParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	if err := e.swarm.Leave(ctx, hc.ProjectID, p); err != nil {
		return nil, err
	}
	return map[string]interface{}{"swarm_name": p.SwarmName, "agent_id": p.AgentID, "left": true}, nil
}

func handleSwarmStatus(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p struct {
		SwarmName string `json:"swarm_name"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.SwarmName == "" {
		return nil, fmt.Errorf("%w: swarm_name is required", ErrInvalidParams)
	}

	return e.swarm.Status(ctx, hc.ProjectID, p.SwarmName)
}

func handleClaimResource(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.ClaimParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	return e.swarm.Acquire(ctx, hc.ProjectID, p)
}

func handleReleaseResource(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.ReleaseParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	if err := e.swarm.Release(ctx, hc.ProjectID, p); err != nil {
		return nil, err
	}
	return map[string]interface{}{"released": true}, nil
}

func handleCheckClaim(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.CheckClaimParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	return e.swarm.CheckClaim(ctx, hc.ProjectID, p)
}

func handleStateGet(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.StateGetParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	return e.swarm.StateGet(ctx, hc.ProjectID, p)
}

func handleStateSet(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.StateSetParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	return e.swarm.StateSet(ctx, hc.ProjectID, p)
}

func handleStatePoll(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.StatePollParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	return e.swarm.StatePoll(ctx, hc.ProjectID, p)
}

func handleTaskCreate(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.TaskCreateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	task, err := e.swarm.TaskCreate(ctx, hc.ProjectID, p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"task": task}, nil
}

func handleTaskCreateBulk(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.TaskCreateBulkParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	tasks, err := e.swarm.TaskCreateBulk(ctx, hc.ProjectID, p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"tasks": tasks, "created": len(tasks)}, nil
}

func handleTaskClaim(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.TaskClaimParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	return e.swarm.TaskClaim(ctx, hc.ProjectID, p)
}

func handleTaskComplete(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.TaskCompleteParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	return e.swarm.TaskComplete(ctx, hc.ProjectID, p)
}

func handleTaskList(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.TaskListParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	tasks, err := e.swarm.TaskList(ctx, hc.ProjectID, p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"tasks": tasks, "total": len(tasks)}, nil
}
