package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snipara/rlm/engine/scoring"
	"github.com/snipara/rlm/models"
)

// multiProjectFanout bounds the concurrent per-project queries.
const multiProjectFanout = 4

type queryOptions struct {
	Query            string
	MaxTokens        int
	Mode             models.SearchMode
	PreferSummaries  bool
	ReturnReferences bool
	SessionID        string
	IncludeShared    bool
	MaxSections      int
	SkipTips         bool
}

func handleContextQuery(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.ContextQueryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	prefer := hc.Settings.PreferSummaries
	if p.PreferSummaries != nil {
		prefer = *p.PreferSummaries
	}
	includeShared := true
	if p.IncludeShared != nil {
		includeShared = *p.IncludeShared
	}

	return e.runContextQuery(ctx, hc, queryOptions{
		Query:            p.Query,
		MaxTokens:        p.MaxTokens,
		Mode:             p.SearchMode,
		PreferSummaries:  prefer,
		ReturnReferences: p.ReturnReferences,
		SessionID:        p.SessionID,
		IncludeShared:    includeShared,
	})
}

func handleAsk(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.AskParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	return e.runContextQuery(ctx, hc, queryOptions{
		Query:           p.Question,
		MaxTokens:       models.AskTokenBudget,
		PreferSummaries: hc.Settings.PreferSummaries,
		SessionID:       p.SessionID,
		IncludeShared:   true,
	})
}

func handleSearch(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.SearchParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	idx, err := e.index.Index(ctx, hc.ProjectID)
	if err != nil {
		return nil, err
	}
	res, err := Search(idx, p.Pattern, p.CaseSensitive, p.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return res, nil
}

func handleMultiQuery(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.MultiQueryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	perQuery := p.MaxTokens / len(p.Queries)
	if perQuery < models.MinMaxTokens {
		perQuery = models.MinMaxTokens
	}

	out := &models.MultiQueryResult{}
	for i, q := range p.Queries {
		r, err := e.runContextQuery(ctx, hc, queryOptions{
			Query:           q,
			MaxTokens:       perQuery,
			PreferSummaries: hc.Settings.PreferSummaries,
			SessionID:       p.SessionID,
			IncludeShared:   i == 0,
			SkipTips:        i > 0,
		})
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, *r)
		out.TotalTokens += r.TotalTokens
	}
	return out, nil
}

func handleMultiProjectQuery(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.MultiProjectQueryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	projects, err := e.projects.AccessibleProjects(ctx, hc.TeamID)
	if err != nil {
		return nil, err
	}
	out := &models.MultiProjectQueryResult{Query: p.Query}
	if len(projects) == 0 {
		return out, nil
	}

	perProject := p.MaxTokens / len(projects)
	if perProject < models.MinMaxTokens {
		perProject = models.MinMaxTokens
	}

	results := make([]models.ProjectQueryResult, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(multiProjectFanout)
	for i, proj := range projects {
		g.Go(func() error {
			sub := &HandlerContext{
				ProjectID:   proj.ID.String(),
				ProjectSlug: proj.Slug,
				UserID:      hc.UserID,
				TeamID:      hc.TeamID,
				AgentID:     hc.AgentID,
				Plan:        hc.Plan,
				AccessLevel: hc.AccessLevel,
				Settings:    proj.Settings,
			}
			r, err := e.runContextQuery(gctx, sub, queryOptions{
				Query:       p.Query,
				MaxTokens:   perProject,
				MaxSections: p.PerProjectLimit,
				SkipTips:    true,
			})
			if err != nil {
				results[i] = models.ProjectQueryResult{
					ProjectID:   proj.ID.String(),
					ProjectSlug: proj.Slug,
					Skipped:     true,
					SkipReason:  "query failed",
				}
				e.log.Warn("multi-project query: project skipped",
					zap.String("project_id", proj.ID.String()), zap.Error(err))
				return nil
			}
			results[i] = models.ProjectQueryResult{
				ProjectID:   proj.ID.String(),
				ProjectSlug: proj.Slug,
				Sections:    r.Sections,
				TotalTokens: r.TotalTokens,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		out.Projects = append(out.Projects, r)
		if r.Skipped {
			out.ProjectsSkipped++
			continue
		}
		out.ProjectsQueried++
		out.TotalTokens += r.TotalTokens
	}
	return out, nil
}

func handleDecompose(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p struct {
		Query string `json:"query"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidParams)
	}

	subs := DecomposeQuery(p.Query)
	reasoning := "single focused query"
	if len(subs) > 1 {
		reasoning = fmt.Sprintf("split on question and coordination boundaries into %d sub-queries", len(subs))
	}
	return &models.DecomposeResult{Query: p.Query, SubQueries: subs, Reasoning: reasoning}, nil
}

func handlePlan(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p struct {
		Query string `json:"query"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidParams)
	}

	subs := DecomposeQuery(p.Query)
	plan := &models.PlanResult{Query: p.Query}
	for i, q := range subs {
		plan.Steps = append(plan.Steps, models.PlanStep{
			Order:       i + 1,
			Description: "Gather context: " + q,
			Query:       q,
		})
	}
	plan.Steps = append(plan.Steps, models.PlanStep{
		Order:       len(subs) + 1,
		Description: "Synthesize the gathered context into an answer",
	})
	return plan, nil
}

func handleGetChunk(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p models.GetChunkParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	idx, err := e.index.Index(ctx, hc.ProjectID)
	if err != nil {
		return nil, err
	}
	sec, ok := idx.SectionByID(p.ChunkID)
	if !ok {
		return nil, fmt.Errorf("%w: chunk %s", ErrNotFound, p.ChunkID)
	}
	return &models.GetChunkResult{
		ChunkID:    sec.ID,
		Title:      sec.Title,
		Content:    sec.Content,
		File:       sec.File,
		StartLine:  sec.StartLine,
		EndLine:    sec.EndLine,
		TokenCount: sec.TokenCount(),
	}, nil
}

func handleSections(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	var p struct {
		File string `json:"file,omitempty"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	idx, err := e.index.Index(ctx, hc.ProjectID)
	if err != nil {
		return nil, err
	}
	listings := []models.SectionListing{}
	for i := range idx.Sections {
		s := &idx.Sections[i]
		if p.File != "" && s.File != p.File {
			continue
		}
		listings = append(listings, models.SectionListing{
			ID:        s.ID,
			Title:     s.Title,
			File:      s.File,
			Level:     s.Level,
			StartLine: s.StartLine,
			EndLine:   s.EndLine,
		})
	}
	return map[string]interface{}{"sections": listings, "total": len(listings)}, nil
}

func handleStats(ctx context.Context, e *Engine, hc *HandlerContext, raw json.RawMessage) (interface{}, error) {
	stats, err := e.projects.Stats(ctx, hc.ProjectID)
	if err != nil {
		return nil, err
	}
	if idx, err := e.index.Index(ctx, hc.ProjectID); err == nil {
		stats.Sections = len(idx.Sections)
		stats.TotalLines = len(idx.Lines)
		stats.TotalTokens = idx.TotalTokens()
	}
	return stats, nil
}

// runContextQuery is the shared hot path behind rlm_context_query, rlm_ask,
// and the multi-query variants.
func (e *Engine) runContextQuery(ctx context.Context, hc *HandlerContext, opts queryOptions) (*models.ContextQueryResult, error) {
	start := time.Now()

	mode := opts.Mode
	if mode == "" {
		mode = hc.Settings.SearchMode
	}
	if mode == "" {
		mode = models.SearchModeHybrid
	}
	if mode != models.SearchModeKeyword && !hc.Plan.HasSemanticSearch() {
		mode = models.SearchModeKeyword
	}

	query := strings.TrimSpace(opts.Query)
	result := &models.ContextQueryResult{
		Query:      query,
		Sections:   []models.ContextSection{},
		MaxTokens:  opts.MaxTokens,
		SearchMode: mode,
	}
	if query == "" {
		result.TimingMs = time.Since(start).Milliseconds()
		return result, nil
	}

	idx, err := e.index.Index(ctx, hc.ProjectID)
	if err != nil {
		return nil, err
	}

	extra := hc.Settings.ExpansionTerms()
	abstract := IsAbstractQuery(query, extra)
	keywords := scoring.ExtractKeywords(query)
	if abstract {
		keywords = scoring.ExpandKeywords(keywords, extra)
	}
	isList := scoring.IsListQuery(query)

	var (
		kwScores  map[string]float64
		semScores map[string]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		kwScores = make(map[string]float64, len(idx.Sections))
		for _, c := range idx.Candidates() {
			if s := scoring.KeywordScore(c, keywords, idx.Ubiquitous, isList); s > 0 {
				kwScores[c.ID] = s
			}
		}
		return nil
	})
	if mode != models.SearchModeKeyword {
		g.Go(func() error {
			hits, err := e.semantic.ChunkHits(gctx, hc.ProjectID, query)
			if err != nil {
				// Semantic scoring is best-effort; ranking degrades to
				// keyword-only when the embedder is unavailable.
				e.log.Warn("semantic scoring unavailable", zap.Error(err))
				return nil
			}
			semScores = scoring.FoldChunkScores(idx.Spans(), hits)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if mode != models.SearchModeKeyword && len(semScores) == 0 {
		semScores = e.onTheFlyScores(ctx, idx, query, kwScores)
	}

	ranked := e.rank(idx, query, mode, kwScores, semScores)
	if opts.MaxSections > 0 && len(ranked) > opts.MaxSections {
		ranked = ranked[:opts.MaxSections]
	}

	var sessionContent string
	if opts.SessionID != "" {
		if sc, err := e.sessions.Get(ctx, hc.ProjectID, opts.SessionID); err == nil && sc != nil {
			sessionContent = sc.Content
		}
	}

	var sharedDocs []SharedDoc
	if opts.IncludeShared && hc.Settings.SharedContext && hc.Plan.HasTeamFeatures() {
		if docs, err := e.shared.SharedDocs(ctx, hc.ProjectID); err == nil {
			sharedDocs = docs
		} else {
			e.log.Warn("shared context unavailable", zap.Error(err))
		}
	}

	var summaries map[string]string
	if opts.PreferSummaries && hc.Plan.HasSummaries() && len(ranked) > 0 {
		ids := make([]string, 0, len(ranked))
		for _, r := range ranked {
			ids = append(ids, r.ID)
		}
		if m, err := e.summaries.ForSections(ctx, hc.ProjectID, ids); err == nil {
			summaries = m
		}
	}

	asm := Assemble(idx, ranked, AssembleOptions{
		Budget:           opts.MaxTokens,
		PreferSummaries:  opts.PreferSummaries,
		ReturnReferences: opts.ReturnReferences,
		Abstract:         abstract,
		SessionContext:   sessionContent,
		SharedDocs:       sharedDocs,
		Summaries:        summaries,
	})

	result.Sections = asm.Sections
	result.SectionRefs = asm.SectionRefs
	result.Suggestions = asm.Suggestions
	result.TotalTokens = asm.TotalTokens
	result.Truncated = asm.Truncated
	result.SummariesUsed = asm.SummariesUsed
	result.SessionContextIncluded = asm.SessionTokens > 0
	result.SessionContextTokens = asm.SessionTokens
	result.SharedContextIncluded = asm.SharedTokens > 0
	result.SharedContextTokens = asm.SharedTokens

	result.QueryComplexity = QueryComplexity(query)
	rec, reason, conf := RoutingRecommendation(query)
	result.RoutingRecommendation = rec
	result.RoutingReason = reason
	result.RoutingConfidence = conf

	if opts.SessionID != "" && !opts.SkipTips {
		if shown, err := e.sessions.MarkTipsShown(ctx, hc.ProjectID, opts.SessionID); err == nil && !shown {
			result.Tips = FirstQueryTips(hc.Plan)
			result.FirstQueryTipsIncluded = true
		}
	}

	result.TimingMs = time.Since(start).Milliseconds()
	return result, nil
}

// rank fuses the available signals into the final graded ranking. The
// internal-path penalty is reapplied to fused raw scores so rank-based
// fusion cannot wash it out.
func (e *Engine) rank(idx *DocumentIndex, query string, mode models.SearchMode, kwScores, semScores map[string]float64) []scoring.Ranked {
	switch {
	case mode == models.SearchModeKeyword || len(semScores) == 0:
		return scoring.NormalizeGraded(sortScores(kwScores), scoring.GradedDecay)
	case mode == models.SearchModeSemantic:
		penalized := make(map[string]float64, len(semScores))
		for id, s := range semScores {
			if sec, ok := idx.SectionByID(id); ok {
				s *= scoring.PathPenalty(sec.File)
			}
			penalized[id] = s
		}
		return scoring.NormalizeGraded(sortScores(penalized), scoring.GradedDecay)
	default:
		profile := scoring.ClassifyQueryWeights(query, kwScores)
		raw := scoring.RRFFusion(kwScores, semScores, profile, scoring.RRFK)
		for i := range raw {
			if sec, ok := idx.SectionByID(raw[i].ID); ok {
				raw[i].Score *= scoring.PathPenalty(sec.File)
			}
		}
		sort.SliceStable(raw, func(i, j int) bool {
			if raw[i].Score != raw[j].Score {
				return raw[i].Score > raw[j].Score
			}
			return raw[i].ID < raw[j].ID
		})
		return scoring.NormalizeGraded(raw, scoring.GradedDecay)
	}
}

// onTheFlyScores embeds a bounded set of section prefixes when no stored
// chunk embeddings exist yet.
func (e *Engine) onTheFlyScores(ctx context.Context, idx *DocumentIndex, query string, kwScores map[string]float64) map[string]float64 {
	top := sortScores(kwScores)
	if len(top) == 0 {
		// No keyword signal either; take the leading sections as-is.
		for i := range idx.Sections {
			if i == scoring.OnTheFlyLimit {
				break
			}
			top = append(top, scoring.Ranked{ID: idx.Sections[i].ID})
		}
	}
	if len(top) > scoring.OnTheFlyLimit {
		top = top[:scoring.OnTheFlyLimit]
	}
	if len(top) == 0 {
		return nil
	}

	texts := make([]string, 0, len(top)+1)
	texts = append(texts, query)
	ids := make([]string, 0, len(top))
	for _, r := range top {
		sec, ok := idx.SectionByID(r.ID)
		if !ok {
			continue
		}
		texts = append(texts, scoring.OnTheFlyText(sec.Title, sec.Content))
		ids = append(ids, sec.ID)
	}

	vecs, err := e.semantic.EmbedTexts(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		if err != nil {
			e.log.Warn("on-the-fly embedding failed", zap.Error(err))
		}
		return nil
	}

	out := make(map[string]float64, len(ids))
	for i, id := range ids {
		if sim := scoring.CosineSimilarity(vecs[0], vecs[i+1]); sim >= scoring.MinChunkSimilarity {
			out[id] = sim
		}
	}
	return out
}

func sortScores(scores map[string]float64) []scoring.Ranked {
	out := make([]scoring.Ranked, 0, len(scores))
	for id, s := range scores {
		if s > 0 {
			out = append(out, scoring.Ranked{ID: id, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
