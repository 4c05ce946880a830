package models

import "time"

// ClaimResult is the rlm_claim_resource payload.
type ClaimResult struct {
	Acquired  bool       `json:"acquired"`
	Extended  bool       `json:"extended,omitempty"`
	ClaimID   string     `json:"claim_id,omitempty"`
	HeldBy    string     `json:"held_by,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CheckClaimResult reports the current holder of a resource, if any.
type CheckClaimResult struct {
	Claimed   bool       `json:"claimed"`
	ClaimID   string     `json:"claim_id,omitempty"`
	HeldBy    string     `json:"held_by,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// StateValue is one shared-state entry as returned to clients, scalar
// wrappers already unwrapped.
type StateValue struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	Version   int64       `json:"version"`
	UpdatedAt time.Time   `json:"updated_at"`
	UpdatedBy string      `json:"updated_by"`
}

// StateSetResult is the rlm_state_set payload. On a version conflict
// Conflict is true and CurrentVersion carries the stored version.
type StateSetResult struct {
	Key             string `json:"key"`
	Version         int64  `json:"version"`
	Conflict        bool   `json:"conflict,omitempty"`
	CurrentVersion  int64  `json:"current_version,omitempty"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
}

// StatePollResult returns only the entries newer than the client's last
// seen versions.
type StatePollResult struct {
	Changed        []StateValue `json:"changed"`
	UnchangedCount int          `json:"unchanged_count"`
	MissingKeys    []string     `json:"missing_keys,omitempty"`
}

// TaskView is a client-facing projection of a swarm task.
type TaskView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	Result      string     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskClaimResult is the rlm_task_claim payload.
type TaskClaimResult struct {
	Claimed bool      `json:"claimed"`
	Task    *TaskView `json:"task,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// TaskCompleteResult reports the transition plus any tasks it unblocked.
type TaskCompleteResult struct {
	TaskID         string     `json:"task_id"`
	Status         TaskStatus `json:"status"`
	UnblockedTasks []TaskView `json:"unblocked_tasks"`
}

// SwarmStatusResult is the rlm_swarm_status payload.
type SwarmStatusResult struct {
	SwarmID      string             `json:"swarm_id"`
	Name         string             `json:"name"`
	MaxAgents    int                `json:"max_agents"`
	Agents       []SwarmAgent       `json:"agents"`
	ActiveClaims int                `json:"active_claims"`
	TasksByState map[TaskStatus]int `json:"tasks_by_state"`
}
