package impl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/snipara/rlm/models"
)

// settingsKeys is the set of client-settable settings fields. Updates naming
// anything else are rejected whole.
var settingsKeys = map[string]struct{}{
	"search_mode":           {},
	"prefer_summaries":      {},
	"memory_save_on_commit": {},
	"memory_inject_types":   {},
	"shared_context":        {},
	"query_expansions":      {},
}

// ProjectService serves project metadata, settings, and corpus stats.
type ProjectService struct {
	db *gorm.DB
}

func NewProjectService(db *gorm.DB) *ProjectService {
	return &ProjectService{db: db}
}

func (s *ProjectService) project(ctx context.Context, projectID string) (*models.Project, error) {
	var proj models.Project
	err := s.db.WithContext(ctx).Where("id = ?", projectID).First(&proj).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("project not found: %s", projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return &proj, nil
}

// Resolve loads a project by id or slug. Used by the internal reindex
// trigger, which authenticates with the shared secret instead of a key.
func (s *ProjectService) Resolve(ctx context.Context, idOrSlug string) (*models.Project, error) {
	var proj models.Project
	q := s.db.WithContext(ctx)
	if _, err := uuid.Parse(idOrSlug); err == nil {
		q = q.Where("id = ?", idOrSlug)
	} else {
		q = q.Where("slug = ?", idOrSlug)
	}
	err := q.First(&proj).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("project not found: %s", idOrSlug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return &proj, nil
}

// AccessibleProjects lists the projects a team can query: its own plus any
// granted through project access rows.
func (s *ProjectService) AccessibleProjects(ctx context.Context, teamID string) ([]models.Project, error) {
	var own []models.Project
	if err := s.db.WithContext(ctx).Where("team_id = ?", teamID).Find(&own).Error; err != nil {
		return nil, fmt.Errorf("failed to load team projects: %w", err)
	}

	var granted []models.Project
	err := s.db.WithContext(ctx).
		Joins("JOIN rlm.project_access a ON a.project_id = rlm.projects.id").
		Where("a.team_id = ? AND a.level <> ?", teamID, models.AccessNone).
		Find(&granted).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load granted projects: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(own))
	out := make([]models.Project, 0, len(own)+len(granted))
	for _, p := range append(own, granted...) {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func (s *ProjectService) Settings(ctx context.Context, projectID string) (*models.ProjectSettings, error) {
	proj, err := s.project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &proj.Settings, nil
}

// UpdateSettings merges the given fields into the settings blob. The merge
// goes through JSON so partial updates keep untouched fields.
func (s *ProjectService) UpdateSettings(ctx context.Context, projectID string, updates map[string]interface{}) (*models.ProjectSettings, error) {
	for key := range updates {
		if _, ok := settingsKeys[key]; !ok {
			return nil, fmt.Errorf("unknown setting: %s", key)
		}
	}

	proj, err := s.project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(proj.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	merged := map[string]interface{}{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	for key, val := range updates {
		merged[key] = val
	}
	raw, err = json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged settings: %w", err)
	}

	var next models.ProjectSettings
	if err := json.Unmarshal(raw, &next); err != nil {
		return nil, fmt.Errorf("invalid settings value: %w", err)
	}

	proj.Settings = next
	if err := s.db.WithContext(ctx).Save(proj).Error; err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}
	return &proj.Settings, nil
}

// Stats returns the stored-corpus counts. Section and line counts come from
// the in-memory index and are filled in by the caller.
func (s *ProjectService) Stats(ctx context.Context, projectID string) (*models.ProjectStats, error) {
	stats := &models.ProjectStats{}
	db := s.db.WithContext(ctx)

	var n int64
	if err := db.Model(&models.Document{}).Where("project_id = ?", projectID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	stats.Documents = int(n)

	if err := db.Model(&models.DocumentChunk{}).Where("project_id = ?", projectID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	stats.Chunks = int(n)

	if err := db.Model(&models.AgentMemory{}).Where("project_id = ?", projectID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("failed to count memories: %w", err)
	}
	stats.Memories = int(n)

	if err := db.Model(&models.Summary{}).Where("project_id = ?", projectID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("failed to count summaries: %w", err)
	}
	stats.Summaries = int(n)

	var job models.IndexJob
	err := db.Where("project_id = ? AND status = ?", projectID, models.JobCompleted).
		Order("completed_at DESC").First(&job).Error
	if err == nil {
		stats.LastIndexedAt = job.CompletedAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load last index job: %w", err)
	}

	return stats, nil
}

// AccessRequests records team requests for project access.
type AccessRequests struct {
	db *gorm.DB
}

func NewAccessRequests(db *gorm.DB) *AccessRequests {
	return &AccessRequests{db: db}
}

// RequestAccess files a pending request. An existing pending request for
// the same (project, team) pair is returned instead of duplicated.
func (s *AccessRequests) RequestAccess(ctx context.Context, projectID, teamID, requestedBy string, p models.RequestAccessParams) (*models.AccessRequest, error) {
	pid, err := uuid.Parse(projectID)
	if err != nil {
		return nil, fmt.Errorf("invalid project id: %w", err)
	}
	tid, err := uuid.Parse(teamID)
	if err != nil {
		return nil, fmt.Errorf("invalid team id: %w", err)
	}

	var existing models.AccessRequest
	err = s.db.WithContext(ctx).
		Where("project_id = ? AND team_id = ? AND status = ?", projectID, teamID, "pending").
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load access request: %w", err)
	}

	req := models.AccessRequest{
		ProjectID: pid,
		TeamID:    tid,
		Level:     p.Level,
		Message:   p.Message,
		Status:    "pending",
	}
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, fmt.Errorf("failed to create access request: %w", err)
	}
	return &req, nil
}
