// Package swarm implements multi-agent coordination on Postgres: exclusive
// resource claims, versioned shared state with compare-and-swap, and a
// dependency-aware task queue. Every conflicting transition is a single
// conditional UPDATE so concurrent agents cannot both win.
package swarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/snipara/rlm/engine"
	"github.com/snipara/rlm/models"
)

// Coordinator is the gorm-backed implementation of engine.Coordinator.
type Coordinator struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewCoordinator(db *gorm.DB, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{db: db, log: log}
}

func parseUUID(s, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", what, err)
	}
	return id, nil
}

func (c *Coordinator) swarmByName(ctx context.Context, projectID, name string) (*models.Swarm, error) {
	var swarm models.Swarm
	err := c.db.WithContext(ctx).
		Where("project_id = ? AND name = ? AND is_active = ?", projectID, name, true).
		First(&swarm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: swarm %q", engine.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load swarm: %w", err)
	}
	return &swarm, nil
}

func (c *Coordinator) CreateSwarm(ctx context.Context, projectID string, p models.SwarmCreateParams) (*models.Swarm, error) {
	pid, err := parseUUID(projectID, "project id")
	if err != nil {
		return nil, err
	}

	var existing models.Swarm
	err = c.db.WithContext(ctx).
		Where("project_id = ? AND name = ?", projectID, p.Name).
		First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("%w: swarm %q already exists", engine.ErrConflict, p.Name)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check swarm name: %w", err)
	}

	swarm := models.Swarm{
		ProjectID:    pid,
		Name:         p.Name,
		MaxAgents:    p.MaxAgents,
		IsActive:     true,
		TaskTimeout:  p.TaskTimeout,
		ClaimTimeout: p.ClaimTimeout,
		CreatedBy:    "api",
	}
	if err := c.db.WithContext(ctx).Create(&swarm).Error; err != nil {
		return nil, fmt.Errorf("failed to create swarm: %w", err)
	}
	return &swarm, nil
}

func (c *Coordinator) Join(ctx context.Context, projectID string, p models.SwarmAgentParams) (*models.SwarmAgent, error) {
	swarm, err := c.swarmByName(ctx, projectID, p.SwarmName)
	if err != nil {
		return nil, err
	}

	var agent models.SwarmAgent
	err = c.db.WithContext(ctx).
		Where("swarm_id = ? AND agent_id = ?", swarm.ID, p.AgentID).
		First(&agent).Error
	if err == nil {
		agent.IsActive = true
		agent.LastHeartbeat = time.Now()
		if p.Role != "" {
			agent.Role = p.Role
		}
		if err := c.db.WithContext(ctx).Save(&agent).Error; err != nil {
			return nil, fmt.Errorf("failed to rejoin swarm: %w", err)
		}
		return &agent, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load swarm agent: %w", err)
	}

	var active int64
	err = c.db.WithContext(ctx).Model(&models.SwarmAgent{}).
		Where("swarm_id = ? AND is_active = ?", swarm.ID, true).
		Count(&active).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count swarm agents: %w", err)
	}
	if int(active) >= swarm.MaxAgents {
		return nil, fmt.Errorf("%w: swarm %q is full (%d agents)", engine.ErrConflict, swarm.Name, swarm.MaxAgents)
	}

	agent = models.SwarmAgent{
		SwarmID:       swarm.ID,
		AgentID:       p.AgentID,
		Role:          p.Role,
		IsActive:      true,
		LastHeartbeat: time.Now(),
		JoinedAt:      time.Now(),
	}
	if err := c.db.WithContext(ctx).Create(&agent).Error; err != nil {
		return nil, fmt.Errorf("failed to join swarm: %w", err)
	}
	return &agent, nil
}

// Leave deactivates the agent and releases every claim it still holds.
func (c *Coordinator) Leave(ctx context.Context, projectID string, p models.SwarmAgentParams) error {
	swarm, err := c.swarmByName(ctx, projectID, p.SwarmName)
	if err != nil {
		return err
	}

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SwarmAgent{}).
			Where("swarm_id = ? AND agent_id = ? AND is_active = ?", swarm.ID, p.AgentID, true).
			Updates(map[string]interface{}{"is_active": false})
		if res.Error != nil {
			return fmt.Errorf("failed to leave swarm: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: agent %q is not in swarm %q", engine.ErrNotFound, p.AgentID, p.SwarmName)
		}

		now := time.Now()
		err := tx.Model(&models.ResourceClaim{}).
			Where("swarm_id = ? AND agent_id = ? AND status = ?", swarm.ID, p.AgentID, models.ClaimActive).
			Updates(map[string]interface{}{"status": models.ClaimReleased, "released_at": now}).Error
		if err != nil {
			return fmt.Errorf("failed to release claims: %w", err)
		}
		return nil
	})
}

func (c *Coordinator) Status(ctx context.Context, projectID, swarmName string) (*models.SwarmStatusResult, error) {
	swarm, err := c.swarmByName(ctx, projectID, swarmName)
	if err != nil {
		return nil, err
	}

	var agents []models.SwarmAgent
	err = c.db.WithContext(ctx).
		Where("swarm_id = ? AND is_active = ?", swarm.ID, true).
		Order("joined_at ASC").
		Find(&agents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load swarm agents: %w", err)
	}

	var activeClaims int64
	err = c.db.WithContext(ctx).Model(&models.ResourceClaim{}).
		Where("swarm_id = ? AND status = ? AND expires_at > ?", swarm.ID, models.ClaimActive, time.Now()).
		Count(&activeClaims).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count claims: %w", err)
	}

	type statusCount struct {
		Status models.TaskStatus
		N      int
	}
	var counts []statusCount
	err = c.db.WithContext(ctx).Model(&models.SwarmTask{}).
		Select("status, COUNT(*) AS n").
		Where("swarm_id = ?", swarm.ID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	byState := make(map[models.TaskStatus]int, len(counts))
	for _, sc := range counts {
		byState[sc.Status] = sc.N
	}

	return &models.SwarmStatusResult{
		SwarmID:      swarm.ID.String(),
		Name:         swarm.Name,
		MaxAgents:    swarm.MaxAgents,
		Agents:       agents,
		ActiveClaims: int(activeClaims),
		TasksByState: byState,
	}, nil
}

// Acquire takes or extends an exclusive lease on a resource. A held,
// unexpired claim by another agent loses; the same agent extends.
func (c *Coordinator) Acquire(ctx context.Context, projectID string, p models.ClaimParams) (*models.ClaimResult, error) {
	swarm, err := c.swarmByName(ctx, projectID, p.SwarmName)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(p.TTLSeconds) * time.Second

	var result *models.ClaimResult
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c.reapExpiredClaims(tx, swarm.ID, p.ResourceType, p.ResourceID)

		var claim models.ResourceClaim
		err := tx.Where("swarm_id = ? AND resource_type = ? AND resource_id = ? AND status = ?",
			swarm.ID, p.ResourceType, p.ResourceID, models.ClaimActive).
			First(&claim).Error
		switch {
		case err == nil:
			if claim.AgentID != p.AgentID {
				result = &models.ClaimResult{
					Acquired:  false,
					ClaimID:   claim.ID.String(),
					HeldBy:    claim.AgentID,
					ExpiresAt: &claim.ExpiresAt,
				}
				return nil
			}
			// Holder renews. The conditional update guards against the
			// claim being reaped or released between read and write.
			newExpiry := time.Now().Add(ttl)
			res := tx.Model(&models.ResourceClaim{}).
				Where("id = ? AND status = ?", claim.ID, models.ClaimActive).
				Update("expires_at", newExpiry)
			if res.Error != nil {
				return fmt.Errorf("failed to extend claim: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return c.createClaim(tx, swarm.ID, p, ttl, &result)
			}
			result = &models.ClaimResult{
				Acquired:  true,
				Extended:  true,
				ClaimID:   claim.ID.String(),
				HeldBy:    p.AgentID,
				ExpiresAt: &newExpiry,
			}
			return nil

		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.createClaim(tx, swarm.ID, p, ttl, &result)

		default:
			return fmt.Errorf("failed to load claim: %w", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) createClaim(tx *gorm.DB, swarmID uuid.UUID, p models.ClaimParams, ttl time.Duration, out **models.ClaimResult) error {
	claim := models.ResourceClaim{
		SwarmID:      swarmID,
		AgentID:      p.AgentID,
		ResourceType: p.ResourceType,
		ResourceID:   p.ResourceID,
		Status:       models.ClaimActive,
		ExpiresAt:    time.Now().Add(ttl),
	}
	if err := tx.Create(&claim).Error; err != nil {
		return fmt.Errorf("failed to create claim: %w", err)
	}
	*out = &models.ClaimResult{
		Acquired:  true,
		ClaimID:   claim.ID.String(),
		HeldBy:    p.AgentID,
		ExpiresAt: &claim.ExpiresAt,
	}
	return nil
}

// reapExpiredClaims lazily retires expired ACTIVE claims on a resource.
func (c *Coordinator) reapExpiredClaims(tx *gorm.DB, swarmID uuid.UUID, resourceType, resourceID string) {
	err := tx.Model(&models.ResourceClaim{}).
		Where("swarm_id = ? AND resource_type = ? AND resource_id = ? AND status = ? AND expires_at <= ?",
			swarmID, resourceType, resourceID, models.ClaimActive, time.Now()).
		Update("status", models.ClaimExpired).Error
	if err != nil {
		c.log.Warn("failed to reap expired claims", zap.Error(err))
	}
}

// Release ends a claim, by claim id or by resource. Only the holder may
// release.
func (c *Coordinator) Release(ctx context.Context, projectID string, p models.ReleaseParams) error {
	swarm, err := c.swarmByName(ctx, projectID, p.SwarmName)
	if err != nil {
		return err
	}

	q := c.db.WithContext(ctx).Model(&models.ResourceClaim{}).
		Where("swarm_id = ? AND agent_id = ? AND status = ?", swarm.ID, p.AgentID, models.ClaimActive)
	if p.ClaimID != "" {
		q = q.Where("id = ?", p.ClaimID)
	} else {
		q = q.Where("resource_type = ? AND resource_id = ?", p.ResourceType, p.ResourceID)
	}

	now := time.Now()
	res := q.Updates(map[string]interface{}{"status": models.ClaimReleased, "released_at": now})
	if res.Error != nil {
		return fmt.Errorf("failed to release claim: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: no active claim held by %q", engine.ErrNotFound, p.AgentID)
	}
	return nil
}

func (c *Coordinator) CheckClaim(ctx context.Context, projectID string, p models.CheckClaimParams) (*models.CheckClaimResult, error) {
	swarm, err := c.swarmByName(ctx, projectID, p.SwarmName)
	if err != nil {
		return nil, err
	}

	var claim models.ResourceClaim
	err = c.db.WithContext(ctx).
		Where("swarm_id = ? AND resource_type = ? AND resource_id = ? AND status = ? AND expires_at > ?",
			swarm.ID, p.ResourceType, p.ResourceID, models.ClaimActive, time.Now()).
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.CheckClaimResult{Claimed: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check claim: %w", err)
	}
	return &models.CheckClaimResult{
		Claimed:   true,
		ClaimID:   claim.ID.String(),
		HeldBy:    claim.AgentID,
		ExpiresAt: &claim.ExpiresAt,
	}, nil
}

// Scalar state values are stored wrapped as {"value": x} so jsonb always
// holds an object; StateGet unwraps them.
func wrapStateValue(v interface{}) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state value: %w", err)
	}
	if len(raw) > 0 && raw[0] == '{' {
		return datatypes.JSON(raw), nil
	}
	wrapped, err := json.Marshal(map[string]json.RawMessage{"value": raw})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap state value: %w", err)
	}
	return datatypes.JSON(wrapped), nil
}

func unwrapStateValue(raw datatypes.JSON) interface{} {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	if v, ok := obj["value"]; ok && len(obj) == 1 {
		return v
	}
	return obj
}

func (c *Coordinator) StateGet(ctx context.Context, projectID string, p models.StateGetParams) (*models.StateValue, error) {
	swarm, err := c.swarmByName(ctx, projectID, p.SwarmName)
	if err != nil {
		return nil, err
	}

	var row models.SharedState
	err = c.db.WithContext(ctx).
		Where("swarm_id = ? AND key = ?", swarm.ID, p.Key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: state key %q", engine.ErrNotFound, p.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if row.ExpiresAt != nil && time.Now().After(*row.ExpiresAt) {
		return nil, fmt.Errorf("%w: state key %q", engine.ErrNotFound, p.Key)
	}

	return &models.StateValue{
		Key:       row.Key,
		Value:     unwrapStateValue(row.Value),
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt,
		UpdatedBy: row.UpdatedBy,
	}, nil
}

// StateSet writes a key, optionally guarded by expected_version. On a
// version mismatch nothing is written and the result carries both versions.
func (c *Coordinator) StateSet(ctx context.Context, projectID string, p models.StateSetParams) (*models.StateSetResult, error) {
	swarm, err := c.swarmByName(ctx, projectID, p.SwarmName)
	if err != nil {
		return nil, err
	}
	value, err := wrapStateValue(p.Value)
	if err != nil {
		return nil, err
	}
	var expiresAt *time.Time
	if p.TTLSeconds > 0 {
		exp := time.Now().Add(time.Duration(p.TTLSeconds) * time.Second)
		expiresAt = &exp
	}

	var row models.SharedState
	err = c.db.WithContext(ctx).
		Where("swarm_id = ? AND key = ?", swarm.ID, p.Key).
		First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if p.ExpectedVersion != nil && *p.ExpectedVersion != 0 {
			return &models.StateSetResult{
				Key:             p.Key,
				Conflict:        true,
				CurrentVersion:  0,
				ExpectedVersion: *p.ExpectedVersion,
			}, nil
		}
		row = models.SharedState{
			SwarmID:   swarm.ID,
			Key:       p.Key,
			Value:     value,
			Version:   1,
			UpdatedBy: p.AgentID,
			ExpiresAt: expiresAt,
		}
		if err := c.db.WithContext(ctx).Create(&row).Error; err != nil {
			return nil, fmt.Errorf("failed to create state: %w", err)
		}
		return &models.StateSetResult{Key: p.Key, Version: 1}, nil

	case err != nil:
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	if p.ExpectedVersion != nil && *p.ExpectedVersion != row.Version {
		return &models.StateSetResult{
			Key:             p.Key,
			Conflict:        true,
			CurrentVersion:  row.Version,
			ExpectedVersion: *p.ExpectedVersion,
		}, nil
	}

	// The version guard in the WHERE clause is the actual CAS; the read
	// above only produced the expected current version.
	res := c.db.WithContext(ctx).Model(&models.SharedState{}).
		Where("id = ? AND version = ?", row.ID, row.Version).
		Updates(map[string]interface{}{
			"value":      value,
			"version":    row.Version + 1,
			"updated_by": p.AgentID,
			"expires_at": expiresAt,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var current models.SharedState
		if err := c.db.WithContext(ctx).Where("id = ?", row.ID).First(&current).Error; err != nil {
			return nil, fmt.Errorf("failed to reload state: %w", err)
		}
		expected := row.Version
		if p.ExpectedVersion != nil {
			expected = *p.ExpectedVersion
		}
		return &models.StateSetResult{
			Key:             p.Key,
			Conflict:        true,
			CurrentVersion:  current.Version,
			ExpectedVersion: expected,
		}, nil
	}

	return &models.StateSetResult{Key: p.Key, Version: row.Version + 1}, nil
}

func (c *Coordinator) StatePoll(ctx context.Context, projectID string, p models.StatePollParams) (*models.StatePollResult, error) {
	swarm, err := c.swarmByName(ctx, projectID, p.SwarmName)
	if err != nil {
		return nil, err
	}

	var rows []models.SharedState
	err = c.db.WithContext(ctx).
		Where("swarm_id = ? AND key IN ?", swarm.ID, p.Keys).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to poll state: %w", err)
	}

	byKey := make(map[string]*models.SharedState, len(rows))
	now := time.Now()
	for i := range rows {
		if rows[i].ExpiresAt != nil && now.After(*rows[i].ExpiresAt) {
			continue
		}
		byKey[rows[i].Key] = &rows[i]
	}

	result := &models.StatePollResult{Changed: []models.StateValue{}}
	for _, key := range p.Keys {
		row, ok := byKey[key]
		if !ok {
			result.MissingKeys = append(result.MissingKeys, key)
			continue
		}
		if row.Version <= p.LastVersions[key] {
			result.UnchangedCount++
			continue
		}
		result.Changed = append(result.Changed, models.StateValue{
			Key:       row.Key,
			Value:     unwrapStateValue(row.Value),
			Version:   row.Version,
			UpdatedAt: row.UpdatedAt,
			UpdatedBy: row.UpdatedBy,
		})
	}
	return result, nil
}

func taskView(t *models.SwarmTask) models.TaskView {
	view := models.TaskView{
		ID:          t.ID.String(),
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		DependsOn:   t.DependencyIDs(),
		Result:      t.Result,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
	if t.AssignedTo != nil {
		view.AssignedTo = *t.AssignedTo
	}
	return view
}

func (c *Coordinator) TaskCreate(ctx context.Context, projectID string, p models.TaskCreateParams) (*models.TaskView, error) {
	swarm, err := c.swarmByName(ctx, projectID, p.SwarmName)
	if err != nil {
		return nil, err
	}
	task, err := c.createTask(c.db.WithContext(ctx), swarm, p)
	if err != nil {
		return nil, err
	}
	view := taskView(task)
	return &view, nil
}

func (c *Coordinator) TaskCreateBulk(ctx context.Context, projectID string, p models.TaskCreateBulkParams) ([]models.TaskView, error) {
	swarm, err := c.swarmByName(ctx, projectID, p.SwarmName)
	if err != nil {
		return nil, err
	}

	views := make([]models.TaskView, 0, len(p.Tasks))
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, tp := range p.Tasks {
			task, err := c.createTask(tx, swarm, tp)
			if err != nil {
				return err
			}
			views = append(views, taskView(task))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

func (c *Coordinator) createTask(tx *gorm.DB, swarm *models.Swarm, p models.TaskCreateParams) (*models.SwarmTask, error) {
	deps, err := models.ConvertToJSON(p.DependsOn)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dependencies: %w", err)
	}

	task := models.SwarmTask{
		SwarmID:     swarm.ID,
		Title:       p.Title,
		Description: p.Description,
		Status:      models.TaskPending,
		Priority:    p.Priority,
		DependsOn:   deps,
		CreatedBy:   "api",
	}
	if p.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, p.Deadline)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid deadline: %v", engine.ErrInvalidParams, err)
		}
		task.Deadline = &deadline
	}
	if err := tx.Create(&task).Error; err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &task, nil
}

// TaskClaim hands the agent the highest-priority eligible PENDING task, or
// the named one. Eligible means every dependency is COMPLETED. Expired
// IN_PROGRESS holds are reaped first.
func (c *Coordinator) TaskClaim(ctx context.Context, projectID string, p models.TaskClaimParams) (*models.TaskClaimResult, error) {
	swarm, err := c.swarmByName(ctx, projectID, p.SwarmName)
	if err != nil {
		return nil, err
	}
	c.reapExpiredTasks(ctx, swarm.ID)

	var candidates []models.SwarmTask
	q := c.db.WithContext(ctx).Where("swarm_id = ? AND status = ?", swarm.ID, models.TaskPending)
	if p.TaskID != "" {
		q = q.Where("id = ?", p.TaskID)
	}
	err = q.Order("priority DESC, created_at ASC").Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending tasks: %w", err)
	}
	if len(candidates) == 0 {
		reason := "no pending tasks"
		if p.TaskID != "" {
			reason = "task is not pending"
		}
		return &models.TaskClaimResult{Claimed: false, Reason: reason}, nil
	}

	for i := range candidates {
		task := &candidates[i]
		ready, err := c.dependenciesCompleted(ctx, task)
		if err != nil {
			return nil, err
		}
		if !ready {
			if p.TaskID != "" {
				return &models.TaskClaimResult{Claimed: false, Reason: "task has incomplete dependencies"}, nil
			}
			continue
		}

		now := time.Now()
		expiry := now.Add(time.Duration(swarm.TaskTimeout) * time.Second)
		res := c.db.WithContext(ctx).Model(&models.SwarmTask{}).
			Where("id = ? AND status = ?", task.ID, models.TaskPending).
			Updates(map[string]interface{}{
				"status":           models.TaskInProgress,
				"assigned_to":      p.AgentID,
				"claimed_at":       now,
				"started_at":       now,
				"claim_expires_at": expiry,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("failed to claim task: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Another agent got there first; try the next candidate.
			continue
		}

		task.Status = models.TaskInProgress
		task.AssignedTo = &p.AgentID
		task.ClaimedAt = &now
		task.StartedAt = &now
		task.ClaimExpiresAt = &expiry
		view := taskView(task)
		return &models.TaskClaimResult{Claimed: true, Task: &view}, nil
	}

	return &models.TaskClaimResult{Claimed: false, Reason: "no eligible tasks"}, nil
}

func (c *Coordinator) dependenciesCompleted(ctx context.Context, task *models.SwarmTask) (bool, error) {
	deps := task.DependencyIDs()
	if len(deps) == 0 {
		return true, nil
	}
	var done int64
	err := c.db.WithContext(ctx).Model(&models.SwarmTask{}).
		Where("id IN ? AND status = ?", deps, models.TaskCompleted).
		Count(&done).Error
	if err != nil {
		return false, fmt.Errorf("failed to check dependencies: %w", err)
	}
	return int(done) == len(deps), nil
}

// reapExpiredTasks returns timed-out IN_PROGRESS tasks to the queue.
func (c *Coordinator) reapExpiredTasks(ctx context.Context, swarmID uuid.UUID) {
	err := c.db.WithContext(ctx).Model(&models.SwarmTask{}).
		Where("swarm_id = ? AND status = ? AND claim_expires_at IS NOT NULL AND claim_expires_at <= ?",
			swarmID, models.TaskInProgress, time.Now()).
		Updates(map[string]interface{}{
			"status":           models.TaskPending,
			"assigned_to":      nil,
			"claimed_at":       nil,
			"started_at":       nil,
			"claim_expires_at": nil,
		}).Error
	if err != nil {
		c.log.Warn("failed to reap expired tasks", zap.Error(err))
	}
}

// TaskComplete transitions the assignee's IN_PROGRESS task to COMPLETED or
// FAILED and reports any tasks the completion unblocked.
func (c *Coordinator) TaskComplete(ctx context.Context, projectID string, p models.TaskCompleteParams) (*models.TaskCompleteResult, error) {
	swarm, err := c.swarmByName(ctx, projectID, p.SwarmName)
	if err != nil {
		return nil, err
	}

	status := models.TaskCompleted
	if p.Success != nil && !*p.Success {
		status = models.TaskFailed
	}

	now := time.Now()
	res := c.db.WithContext(ctx).Model(&models.SwarmTask{}).
		Where("id = ? AND swarm_id = ? AND status = ? AND assigned_to = ?",
			p.TaskID, swarm.ID, models.TaskInProgress, p.AgentID).
		Updates(map[string]interface{}{
			"status":           status,
			"completed_at":     now,
			"result":           p.Result,
			"claim_expires_at": nil,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to complete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: task %q is not in progress for agent %q", engine.ErrConflict, p.TaskID, p.AgentID)
	}

	result := &models.TaskCompleteResult{
		TaskID:         p.TaskID,
		Status:         status,
		UnblockedTasks: []models.TaskView{},
	}
	if status != models.TaskCompleted {
		return result, nil
	}

	var pending []models.SwarmTask
	err = c.db.WithContext(ctx).
		Where("swarm_id = ? AND status = ?", swarm.ID, models.TaskPending).
		Order("priority DESC, created_at ASC").
		Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending tasks: %w", err)
	}
	for i := range pending {
		task := &pending[i]
		if !dependsOn(task, p.TaskID) {
			continue
		}
		ready, err := c.dependenciesCompleted(ctx, task)
		if err != nil {
			return nil, err
		}
		if ready {
			result.UnblockedTasks = append(result.UnblockedTasks, taskView(task))
		}
	}
	return result, nil
}

func dependsOn(task *models.SwarmTask, taskID string) bool {
	for _, dep := range task.DependencyIDs() {
		if dep == taskID {
			return true
		}
	}
	return false
}

func (c *Coordinator) TaskList(ctx context.Context, projectID string, p models.TaskListParams) ([]models.TaskView, error) {
	swarm, err := c.swarmByName(ctx, projectID, p.SwarmName)
	if err != nil {
		return nil, err
	}

	q := c.db.WithContext(ctx).Where("swarm_id = ?", swarm.ID)
	if p.Status != "" {
		q = q.Where("status = ?", p.Status)
	}

	var tasks []models.SwarmTask
	err = q.Order("priority DESC, created_at ASC").Limit(p.Limit).Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	views := make([]models.TaskView, len(tasks))
	for i := range tasks {
		views[i] = taskView(&tasks[i])
	}
	return views, nil
}
