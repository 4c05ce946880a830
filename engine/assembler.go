package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/snipara/rlm/engine/scoring"
	"github.com/snipara/rlm/engine/tokens"
	"github.com/snipara/rlm/models"
)

// SharedBudgetShare caps the slice of the budget that shared-context
// documents may consume.
const SharedBudgetShare = 0.4

// AbstractOverrunShare is how far past the budget a single section may run
// to satisfy the abstract-query section floor.
const AbstractOverrunShare = 0.2

// ReferencePreviewChars is the preview length in reference mode.
const ReferencePreviewChars = 100

// MaxSuggestions bounds the did-not-fit suggestion list.
const MaxSuggestions = 5

// sharedCategoryWeights splits the shared allocation by category
// precedence.
var sharedCategoryOrder = []models.SharedCategory{
	models.SharedMandatory,
	models.SharedBestPractices,
	models.SharedGuidelines,
	models.SharedReference,
}

var sharedCategoryWeights = map[models.SharedCategory]float64{
	models.SharedMandatory:     0.4,
	models.SharedBestPractices: 0.3,
	models.SharedGuidelines:    0.2,
	models.SharedReference:     0.1,
}

// SharedDoc is one shared-collection document offered to the assembler.
type SharedDoc struct {
	Category models.SharedCategory
	Title    string
	Content  string
}

// AssembleOptions carry everything beyond the ranking that shapes the
// output.
type AssembleOptions struct {
	Budget           int
	PreferSummaries  bool
	ReturnReferences bool
	Abstract         bool

	SessionContext string
	SharedDocs     []SharedDoc

	// Summaries maps section id to stored summary text.
	Summaries map[string]string
}

// AssembleResult is the assembler's output, folded into the tool payload by
// the handlers.
type AssembleResult struct {
	Sections    []models.ContextSection
	SectionRefs []models.ContextSectionRef
	Suggestions []models.SectionSuggestion

	TotalTokens   int
	Truncated     bool
	SummariesUsed int

	SessionTokens int
	SharedTokens  int
	SharedContent string
}

// Assemble fits the ranked sections into the token budget. Session context
// is charged first, then the shared-context allocation, then sections are
// walked in rank order with at most one tail-truncation.
func Assemble(idx *DocumentIndex, ranked []scoring.Ranked, opts AssembleOptions) AssembleResult {
	var res AssembleResult
	remaining := opts.Budget

	if strings.TrimSpace(opts.SessionContext) != "" {
		res.SessionTokens = tokens.Count(opts.SessionContext)
		remaining -= res.SessionTokens
	}

	if len(opts.SharedDocs) > 0 && remaining > 0 {
		res.SharedContent, res.SharedTokens = assembleShared(opts.SharedDocs, remaining)
		remaining -= res.SharedTokens
	}

	res.TotalTokens = res.SessionTokens + res.SharedTokens

	minSections := 1
	if opts.Abstract {
		minSections = AbstractQueryMinSections
	}
	overrunUsed := false

	for _, r := range ranked {
		if remaining <= 0 && !opts.Abstract {
			break
		}
		sec, ok := idx.SectionByID(r.ID)
		if !ok {
			continue
		}

		if opts.ReturnReferences {
			ref := referenceFor(sec, r.Score)
			if ref.TokenCount > remaining {
				res.Suggestions = suggest(res.Suggestions, sec)
				continue
			}
			res.SectionRefs = append(res.SectionRefs, ref)
			res.TotalTokens += ref.TokenCount
			remaining -= ref.TokenCount
			continue
		}

		content := sec.Content
		fromSummary := false
		if opts.PreferSummaries {
			if summary, ok := opts.Summaries[sec.ID]; ok && summary != "" {
				content = summary
				fromSummary = true
			}
		}
		count := tokens.Count(content)

		switch {
		case count <= remaining:
			// Fits in full.
		case opts.Abstract && !overrunUsed && len(res.Sections) < minSections &&
			res.TotalTokens+count <= opts.Budget+int(AbstractOverrunShare*float64(opts.Budget)):
			// One over-budget section to satisfy the abstract floor.
			overrunUsed = true
		case remaining > 0:
			// Single tail-truncation, then stop.
			content = tokens.Truncate(content, remaining)
			count = tokens.Count(content)
			res.Sections = append(res.Sections, sectionFor(sec, r.Score, content, count, true, fromSummary))
			if fromSummary {
				res.SummariesUsed++
			}
			res.TotalTokens += count
			res.Truncated = true
			res.Suggestions = trailingSuggestions(idx, ranked, res)
			return res
		default:
			res.Suggestions = suggest(res.Suggestions, sec)
			continue
		}

		res.Sections = append(res.Sections, sectionFor(sec, r.Score, content, count, false, fromSummary))
		if fromSummary {
			res.SummariesUsed++
		}
		res.TotalTokens += count
		remaining -= count

		if opts.Abstract && overrunUsed && len(res.Sections) >= minSections {
			break
		}
	}

	res.Suggestions = trailingSuggestions(idx, ranked, res)
	return res
}

func sectionFor(sec *Section, score float64, content string, count int, truncated, fromSummary bool) models.ContextSection {
	return models.ContextSection{
		ID:             sec.ID,
		Title:          sec.Title,
		Content:        content,
		File:           sec.File,
		StartLine:      sec.StartLine,
		EndLine:        sec.EndLine,
		Level:          sec.Level,
		RelevanceScore: score,
		TokenCount:     count,
		Truncated:      truncated,
		FromSummary:    fromSummary,
	}
}

func referenceFor(sec *Section, score float64) models.ContextSectionRef {
	preview := sec.Content
	if len(preview) > ReferencePreviewChars {
		cut := ReferencePreviewChars
		// Back off to a rune boundary.
		for cut > 0 && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
	}
	return models.ContextSectionRef{
		ChunkID:        sec.ID,
		Title:          sec.Title,
		Preview:        preview,
		File:           sec.File,
		StartLine:      sec.StartLine,
		EndLine:        sec.EndLine,
		RelevanceScore: score,
		TokenCount:     tokens.Count(preview),
	}
}

// trailingSuggestions fills the suggestion list with next-ranked sections
// not already delivered, capped at MaxSuggestions.
func trailingSuggestions(idx *DocumentIndex, ranked []scoring.Ranked, res AssembleResult) []models.SectionSuggestion {
	out := res.Suggestions
	delivered := make(map[string]struct{}, len(res.Sections)+len(res.SectionRefs))
	for _, s := range res.Sections {
		delivered[s.ID] = struct{}{}
	}
	for _, s := range res.SectionRefs {
		delivered[s.ChunkID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(out))
	for _, s := range out {
		seen[fmt.Sprintf("%s:%d", s.File, s.StartLine)] = struct{}{}
	}

	for _, r := range ranked {
		if len(out) >= MaxSuggestions {
			break
		}
		if _, ok := delivered[r.ID]; ok {
			continue
		}
		sec, ok := idx.SectionByID(r.ID)
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s:%d", sec.File, sec.StartLine)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, models.SectionSuggestion{
			Title:     sec.Title,
			File:      sec.File,
			StartLine: sec.StartLine,
			EndLine:   sec.EndLine,
		})
	}
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out
}

func suggest(out []models.SectionSuggestion, sec *Section) []models.SectionSuggestion {
	if len(out) >= MaxSuggestions {
		return out
	}
	return append(out, models.SectionSuggestion{
		Title:     sec.Title,
		File:      sec.File,
		StartLine: sec.StartLine,
		EndLine:   sec.EndLine,
	})
}

// assembleShared builds the shared-context block under its allocation:
// min(SharedBudgetShare of the budget, the documents' total), split across
// categories by precedence.
func assembleShared(docs []SharedDoc, budget int) (string, int) {
	total := 0
	byCategory := make(map[models.SharedCategory][]SharedDoc)
	for _, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		byCategory[d.Category] = append(byCategory[d.Category], d)
		total += tokens.Count(d.Content)
	}
	if total == 0 {
		return "", 0
	}

	allocation := int(SharedBudgetShare * float64(budget))
	if total < allocation {
		allocation = total
	}
	if allocation <= 0 {
		return "", 0
	}

	var b strings.Builder
	used := 0
	carry := 0
	for i, cat := range sharedCategoryOrder {
		catBudget := int(sharedCategoryWeights[cat]*float64(allocation)) + carry
		if i == len(sharedCategoryOrder)-1 {
			// The last category absorbs flooring losses so a small corpus
			// that fits the allocation is never silently dropped.
			catBudget = allocation - used
		}
		catDocs := byCategory[cat]
		if len(catDocs) == 0 {
			carry = catBudget
			continue
		}
		for _, d := range catDocs {
			if catBudget <= 0 {
				break
			}
			content := d.Content
			count := tokens.Count(content)
			if count > catBudget {
				content = tokens.Truncate(content, catBudget)
				count = tokens.Count(content)
			}
			if count == 0 {
				continue
			}
			b.WriteString(fmt.Sprintf("## [%s] %s\n\n%s\n\n", cat, d.Title, content))
			catBudget -= count
			used += count
		}
		carry = catBudget
	}
	return strings.TrimRight(b.String(), "\n"), used
}
