package impl

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/snipara/rlm/engine"
	"github.com/snipara/rlm/engine/scoring"
	"github.com/snipara/rlm/models"
)

// MemoryStore persists agent memories in Postgres. Recall ranks by
// embedding similarity when vectors are available and falls back to keyword
// overlap when they are not.
type MemoryStore struct {
	db       *gorm.DB
	embedder Embedder
	log      *zap.Logger
}

// NewMemoryStore creates a memory store. embedder may be nil; recall then
// always uses keyword overlap.
func NewMemoryStore(db *gorm.DB, embedder Embedder, log *zap.Logger) *MemoryStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &MemoryStore{db: db, embedder: embedder, log: log}
}

func (m *MemoryStore) Remember(ctx context.Context, owner engine.MemoryOwner, p models.RememberParams) (*models.AgentMemory, error) {
	mem, err := m.buildMemory(ctx, owner, p)
	if err != nil {
		return nil, err
	}
	if err := m.db.WithContext(ctx).Create(mem).Error; err != nil {
		return nil, fmt.Errorf("failed to store memory: %w", err)
	}
	return mem, nil
}

func (m *MemoryStore) RememberBulk(ctx context.Context, owner engine.MemoryOwner, items []models.RememberParams) ([]models.AgentMemory, error) {
	mems := make([]models.AgentMemory, 0, len(items))
	for _, p := range items {
		mem, err := m.buildMemory(ctx, owner, p)
		if err != nil {
			return nil, err
		}
		mems = append(mems, *mem)
	}
	if err := m.db.WithContext(ctx).Create(&mems).Error; err != nil {
		return nil, fmt.Errorf("failed to store memories: %w", err)
	}
	return mems, nil
}

func (m *MemoryStore) buildMemory(ctx context.Context, owner engine.MemoryOwner, p models.RememberParams) (*models.AgentMemory, error) {
	projectID, err := uuid.Parse(owner.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("invalid project id: %w", err)
	}

	mem := &models.AgentMemory{
		ProjectID: projectID,
		Scope:     p.Scope,
		Type:      p.Type,
		Content:   p.Content,
		Category:  p.Category,
		Tags:      p.Tags,
		Source:    "manual",
	}
	if owner.AgentID != "" {
		mem.AgentID = &owner.AgentID
	}
	if owner.UserID != "" {
		mem.UserID = &owner.UserID
	}
	if p.TTLDays > 0 {
		exp := time.Now().AddDate(0, 0, p.TTLDays)
		mem.ExpiresAt = &exp
	}

	if m.embedder != nil {
		vecs, err := m.embedder.CreateEmbedding(ctx, []string{p.Content})
		if err != nil {
			// Memories stay recallable via keyword overlap.
			m.log.Warn("memory embedding failed", zap.Error(err))
		} else if len(vecs) == 1 {
			v := pgvector.NewVector(vecs[0])
			mem.Embedding = &v
		}
	}
	return mem, nil
}

func (m *MemoryStore) Recall(ctx context.Context, owner engine.MemoryOwner, p models.RecallParams) ([]models.RecalledMemory, error) {
	q := m.scopedQuery(ctx, owner)
	if p.Type != "" {
		q = q.Where("type = ?", p.Type)
	}
	if p.Scope != "" {
		q = q.Where("scope = ?", p.Scope)
	}
	if !p.IncludeExpired {
		q = q.Where("expires_at IS NULL OR expires_at > ?", time.Now())
	}

	var mems []models.AgentMemory
	if err := q.Find(&mems).Error; err != nil {
		return nil, fmt.Errorf("failed to load memories: %w", err)
	}
	if len(mems) == 0 {
		return []models.RecalledMemory{}, nil
	}

	scores := m.relevanceScores(ctx, p.Query, mems)

	out := make([]models.RecalledMemory, 0, p.Limit)
	type scored struct {
		mem   *models.AgentMemory
		score float64
	}
	ranked := make([]scored, 0, len(mems))
	for i := range mems {
		if scores[i] < p.MinRelevance {
			continue
		}
		ranked = append(ranked, scored{mem: &mems[i], score: scores[i]})
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	for _, r := range ranked {
		if len(out) >= p.Limit {
			break
		}
		out = append(out, models.RecalledMemory{
			ID:        r.mem.ID,
			Type:      r.mem.Type,
			Scope:     r.mem.Scope,
			Content:   r.mem.Content,
			Category:  r.mem.Category,
			Relevance: r.score,
			CreatedAt: r.mem.CreatedAt,
		})
	}
	return out, nil
}

// relevanceScores returns one score per memory, in input order. Embedding
// similarity applies when both the query vector and the memory vector
// exist; keyword overlap covers the rest.
func (m *MemoryStore) relevanceScores(ctx context.Context, query string, mems []models.AgentMemory) []float64 {
	var qvec []float32
	if m.embedder != nil {
		vecs, err := m.embedder.CreateEmbedding(ctx, []string{query})
		if err != nil {
			m.log.Warn("recall embedding failed, using keyword overlap", zap.Error(err))
		} else if len(vecs) == 1 {
			qvec = vecs[0]
		}
	}

	scores := make([]float64, len(mems))
	for i := range mems {
		if qvec != nil && mems[i].Embedding != nil {
			scores[i] = scoring.CosineSimilarity(qvec, mems[i].Embedding.Slice())
			continue
		}
		scores[i] = keywordOverlap(query, mems[i].Content)
	}
	return scores
}

// keywordOverlap is the share of query keywords present in the content.
func keywordOverlap(query, content string) float64 {
	keywords := scoring.ExtractKeywords(query)
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

func (m *MemoryStore) List(ctx context.Context, owner engine.MemoryOwner, p models.MemoriesParams) ([]models.AgentMemory, error) {
	q := m.scopedQuery(ctx, owner)
	if p.Type != "" {
		q = q.Where("type = ?", p.Type)
	}
	if p.Scope != "" {
		q = q.Where("scope = ?", p.Scope)
	}
	if p.Category != "" {
		q = q.Where("category = ?", p.Category)
	}
	if !p.IncludeExpired {
		q = q.Where("expires_at IS NULL OR expires_at > ?", time.Now())
	}

	var mems []models.AgentMemory
	if err := q.Order("created_at DESC").Limit(p.Limit).Find(&mems).Error; err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	return mems, nil
}

func (m *MemoryStore) Forget(ctx context.Context, owner engine.MemoryOwner, p models.ForgetParams) (int64, error) {
	q := m.db.WithContext(ctx).Where("project_id = ?", owner.ProjectID)
	if p.MemoryID != "" {
		q = q.Where("id = ?", p.MemoryID)
	}
	if p.Type != "" {
		q = q.Where("type = ?", p.Type)
	}
	if p.Category != "" {
		q = q.Where("category = ?", p.Category)
	}
	if p.OlderThanDays > 0 {
		q = q.Where("created_at < ?", time.Now().AddDate(0, 0, -p.OlderThanDays))
	}

	res := q.Delete(&models.AgentMemory{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to forget memories: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// scopedQuery restricts reads to memories the owner can see: project and
// team scoped rows, plus agent and user scoped rows they own.
func (m *MemoryStore) scopedQuery(ctx context.Context, owner engine.MemoryOwner) *gorm.DB {
	q := m.db.WithContext(ctx).Where("project_id = ?", owner.ProjectID)
	return q.Where(
		"scope IN ? OR (scope = ? AND agent_id = ?) OR (scope = ? AND user_id = ?)",
		[]models.MemoryScope{models.ScopeProject, models.ScopeTeam},
		models.ScopeAgent, owner.AgentID,
		models.ScopeUser, owner.UserID,
	)
}
