package engine

import (
	"strings"
	"testing"

	"github.com/snipara/rlm/engine/scoring"
	"github.com/snipara/rlm/engine/tokens"
	"github.com/snipara/rlm/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndex(t *testing.T) *DocumentIndex {
	t.Helper()
	docs := []IndexedDocument{
		{Path: "docs/pricing.md", Content: "# Pricing\n\nFree, Pro, Team and Enterprise tiers.\n\n## Limits\n\n" + strings.Repeat("Rate limits scale with the plan. ", 40)},
		{Path: "docs/arch.md", Content: "# Architecture\n\n" + strings.Repeat("The service has three components. ", 60) + "\n\n## Storage\n\nPostgres and Redis."},
	}
	return BuildIndex("proj-1", docs)
}

func rankAll(idx *DocumentIndex) []scoring.Ranked {
	out := make([]scoring.Ranked, len(idx.Sections))
	for i, s := range idx.Sections {
		out[i] = scoring.Ranked{ID: s.ID, Score: float64(100 - i)}
	}
	return out
}

func TestAssembleFitsBudget(t *testing.T) {
	idx := testIndex(t)
	res := Assemble(idx, rankAll(idx), AssembleOptions{Budget: 4000})

	require.NotEmpty(t, res.Sections)
	assert.LessOrEqual(t, res.TotalTokens, 4000)
	assert.False(t, res.Truncated)

	// Rank order is preserved and no section repeats.
	seen := make(map[string]bool)
	for i, s := range res.Sections {
		assert.False(t, seen[s.ID])
		seen[s.ID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, res.Sections[i-1].RelevanceScore, s.RelevanceScore)
		}
	}
}

func TestAssembleZeroBudget(t *testing.T) {
	idx := testIndex(t)
	res := Assemble(idx, rankAll(idx), AssembleOptions{Budget: 0})

	assert.Empty(t, res.Sections)
	assert.Zero(t, res.TotalTokens)
}

func TestAssembleEmptyRanking(t *testing.T) {
	idx := testIndex(t)
	res := Assemble(idx, nil, AssembleOptions{Budget: 1000, SessionContext: "remember the auth decision"})

	assert.Empty(t, res.Sections)
	assert.Equal(t, res.SessionTokens, res.TotalTokens)
}

func TestAssembleTruncatesOnceAndStops(t *testing.T) {
	idx := testIndex(t)
	ranked := rankAll(idx)

	// A budget big enough for the first small section but not the next big
	// one forces a single truncation.
	first, ok := idx.SectionByID(ranked[0].ID)
	require.True(t, ok)
	budget := first.TokenCount() + 10

	res := Assemble(idx, ranked, AssembleOptions{Budget: budget})

	assert.True(t, res.Truncated)
	assert.LessOrEqual(t, res.TotalTokens, budget)
	// Only the last delivered section carries the truncated flag.
	for i, s := range res.Sections {
		if i < len(res.Sections)-1 {
			assert.False(t, s.Truncated)
		}
	}
}

func TestAssembleSessionContextSubtractsFromBudget(t *testing.T) {
	idx := testIndex(t)
	session := strings.Repeat("decision log entry. ", 50)

	with := Assemble(idx, rankAll(idx), AssembleOptions{Budget: 600, SessionContext: session})
	without := Assemble(idx, rankAll(idx), AssembleOptions{Budget: 600})

	assert.Equal(t, tokens.Count(session), with.SessionTokens)
	assert.LessOrEqual(t, with.TotalTokens, 600)
	sectionTokens := with.TotalTokens - with.SessionTokens
	assert.LessOrEqual(t, sectionTokens, without.TotalTokens)
}

func TestAssembleSharedContextCapped(t *testing.T) {
	idx := testIndex(t)
	docs := []SharedDoc{
		{Category: models.SharedMandatory, Title: "Standards", Content: strings.Repeat("Always write tests. ", 200)},
		{Category: models.SharedReference, Title: "Links", Content: strings.Repeat("See the wiki. ", 200)},
	}

	res := Assemble(idx, rankAll(idx), AssembleOptions{Budget: 1000, SharedDocs: docs})

	assert.Greater(t, res.SharedTokens, 0)
	assert.LessOrEqual(t, res.SharedTokens, int(SharedBudgetShare*1000))
	assert.LessOrEqual(t, res.TotalTokens, 1000)
	assert.Contains(t, res.SharedContent, "MANDATORY")
}

func TestAssembleSharedCategoryPrecedence(t *testing.T) {
	idx := testIndex(t)
	docs := []SharedDoc{
		{Category: models.SharedReference, Title: "Refs", Content: "reference text"},
		{Category: models.SharedMandatory, Title: "Rules", Content: "mandatory text"},
	}

	res := Assemble(idx, rankAll(idx), AssembleOptions{Budget: 4000, SharedDocs: docs})

	mandatory := strings.Index(res.SharedContent, "MANDATORY")
	reference := strings.Index(res.SharedContent, "REFERENCE")
	require.GreaterOrEqual(t, mandatory, 0)
	require.GreaterOrEqual(t, reference, 0)
	assert.Less(t, mandatory, reference)
}

func TestAssembleSharedSmallCorpusFits(t *testing.T) {
	idx := testIndex(t)
	docs := []SharedDoc{
		{Category: models.SharedReference, Title: "Links", Content: "See the internal wiki for escalation contacts."},
		{Category: models.SharedGuidelines, Title: "Style", Content: "Prefer short sentences in docs."},
	}

	// Everything fits the shared allocation, so no category may starve on
	// its fractional share.
	res := Assemble(idx, rankAll(idx), AssembleOptions{Budget: 4000, SharedDocs: docs})

	assert.Contains(t, res.SharedContent, "GUIDELINES")
	assert.Contains(t, res.SharedContent, "REFERENCE")
	assert.Contains(t, res.SharedContent, "escalation contacts")
}

func TestAssemblePreferSummaries(t *testing.T) {
	idx := testIndex(t)
	ranked := rankAll(idx)
	summaries := map[string]string{ranked[0].ID: "Short summary of the section."}

	res := Assemble(idx, ranked, AssembleOptions{Budget: 4000, PreferSummaries: true, Summaries: summaries})

	require.NotEmpty(t, res.Sections)
	assert.True(t, res.Sections[0].FromSummary)
	assert.Equal(t, "Short summary of the section.", res.Sections[0].Content)
	assert.Equal(t, 1, res.SummariesUsed)
}

func TestAssembleReferenceMode(t *testing.T) {
	idx := testIndex(t)
	res := Assemble(idx, rankAll(idx), AssembleOptions{Budget: 4000, ReturnReferences: true})

	assert.Empty(t, res.Sections)
	require.NotEmpty(t, res.SectionRefs)
	for _, ref := range res.SectionRefs {
		assert.NotEmpty(t, ref.ChunkID)
		assert.LessOrEqual(t, len(ref.Preview), ReferencePreviewChars)
		sec, ok := idx.SectionByID(ref.ChunkID)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(sec.Content, ref.Preview))
	}
	assert.LessOrEqual(t, res.TotalTokens, 4000)
}

func TestAssembleAbstractAllowsBoundedOverrun(t *testing.T) {
	idx := testIndex(t)
	ranked := rankAll(idx)
	first, ok := idx.SectionByID(ranked[0].ID)
	require.True(t, ok)

	// Budget slightly below the first section: the abstract floor admits it
	// in full because the overrun stays within 20%.
	budget := first.TokenCount() - first.TokenCount()/10

	res := Assemble(idx, ranked, AssembleOptions{Budget: budget, Abstract: true})

	require.NotEmpty(t, res.Sections)
	assert.False(t, res.Sections[0].Truncated)
	assert.LessOrEqual(t, res.TotalTokens, budget+budget/5+1)
}

func TestAssembleSuggestionsForUndelivered(t *testing.T) {
	idx := testIndex(t)
	ranked := rankAll(idx)
	first, ok := idx.SectionByID(ranked[0].ID)
	require.True(t, ok)

	res := Assemble(idx, ranked, AssembleOptions{Budget: first.TokenCount() + 5})

	assert.NotEmpty(t, res.Suggestions)
	assert.LessOrEqual(t, len(res.Suggestions), MaxSuggestions)
	for _, s := range res.Suggestions {
		assert.NotEmpty(t, s.Title)
	}
}
