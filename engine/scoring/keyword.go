package scoring

import (
	"regexp"
	"strings"
)

// Candidate is the minimal view of a section the keyword scorer needs.
type Candidate struct {
	ID      string
	Title   string
	Content string
	File    string
	Level   int
}

var wordSplit = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// ExtractKeywords returns the lowercase query keywords with stop words and
// single-character tokens removed.
func ExtractKeywords(query string) []string {
	words := wordSplit.Split(strings.ToLower(query), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		if _, stop := StopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// ExpandKeywords appends expansion-dictionary terms for abstract keywords
// and two-word phrases. Returned terms are lowercase and deduplicated.
// The extra map layers project-specific expansions over the global table.
func ExpandKeywords(keywords []string, extra map[string][]string) []string {
	expanded := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		expanded = append(expanded, kw)
		seen[kw] = struct{}{}
	}

	appendExpansions := func(key string) {
		terms, ok := QueryExpansions[key]
		if extraTerms, okExtra := extra[key]; okExtra {
			terms, ok = extraTerms, true
		}
		if !ok {
			return
		}
		for _, t := range terms {
			lower := strings.ToLower(t)
			if _, dup := seen[lower]; !dup {
				expanded = append(expanded, lower)
				seen[lower] = struct{}{}
			}
		}
	}

	for _, kw := range keywords {
		appendExpansions(kw)
	}
	for i := 0; i+1 < len(keywords); i++ {
		appendExpansions(keywords[i] + " " + keywords[i+1])
	}
	return expanded
}

// IsListQuery detects queries asking for an enumeration of items.
func IsListQuery(query string) bool {
	lower := strings.ToLower(query)
	for pattern := range ListQueryPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// HasSpecificTerm reports whether any keyword signals structured or factual
// content.
func HasSpecificTerm(keywords []string) bool {
	for _, kw := range keywords {
		if _, ok := SpecificQueryTerms[kw]; ok {
			return true
		}
	}
	return false
}

// HasConceptualPrefix reports whether the query opens like a conceptual
// question.
func HasConceptualPrefix(query string) bool {
	lower := strings.TrimSpace(strings.ToLower(query))
	for _, prefix := range ConceptualPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// PathPenalty returns the multiplier for a section's file path. Working
// notes under internal paths keep a tenth of their score.
func PathPenalty(path string) float64 {
	lower := strings.ToLower(path)
	for _, pattern := range InternalPathPatterns {
		if strings.Contains(lower, pattern) {
			return InternalPenalty
		}
	}
	return 1.0
}

// KeywordScore computes the keyword relevance of one section.
//
// Title matches take the distinctive weight unless the keyword is generic or
// ubiquitous in this corpus; body matches are length-normalized so long
// sections cannot dominate on raw counts. Multi-keyword title coverage and
// verbatim phrase hits multiply the score; list-shaped sections are boosted
// for list-intent queries; internal paths are penalized last.
func KeywordScore(c Candidate, keywords []string, ubiquitous map[string]struct{}, listQuery bool) float64 {
	score := 0.0
	titleLower := strings.ToLower(c.Title)
	contentLower := strings.ToLower(c.Content)

	// Simplified BM25 length normalization with avgdl 2000 chars.
	lengthNorm := 1.0 / (1.0 + BM25B*(float64(len(contentLower))/BM25AvgDocLen-1.0))
	if lengthNorm < 0.15 {
		lengthNorm = 0.15
	}

	titleKeywordHits := 0

	for _, keyword := range keywords {
		if len(keyword) < 2 {
			continue
		}

		stem := Stem(keyword)

		titleCount := strings.Count(titleLower, keyword)
		// Stem fallback catches morphological variants: "prices" (stem
		// "pric") matches a title containing "pricing".
		if titleCount == 0 && stem != keyword {
			titleCount = strings.Count(titleLower, stem)
		}
		if titleCount > 0 {
			titleKeywordHits++
			if isGenericTerm(keyword, stem, ubiquitous) {
				score += float64(titleCount) * TitleWeightGeneric
			} else {
				score += float64(titleCount) * TitleWeightDistinctive
			}
		}

		contentCount := strings.Count(contentLower, keyword)
		if contentCount == 0 && stem != keyword {
			contentCount = strings.Count(contentLower, stem)
		}
		score += float64(contentCount) * BodyWeight * lengthNorm
	}

	// Higher-level sections (h1, h2) carry more context.
	if score > 0 {
		score += float64(max(0, 4-c.Level)) * 0.5
	}

	// Multi-keyword title coverage means a direct topical match.
	if titleKeywordHits >= 2 {
		score *= 1.0 + float64(titleKeywordHits)*2.0
	}

	// Verbatim phrase in the title is very likely the right section.
	significant := make([]string, 0, 4)
	for _, w := range keywords {
		if len(w) >= 3 {
			significant = append(significant, w)
			if len(significant) == 4 {
				break
			}
		}
	}
	if len(significant) >= 2 {
		if strings.Contains(titleLower, strings.Join(significant, " ")) {
			score *= PhraseBoost
		}
	}

	if listQuery && score > 0 {
		score = applyListPatternBoost(c, score)
	}

	return score * PathPenalty(c.File)
}

func applyListPatternBoost(c Candidate, base float64) float64 {
	combined := strings.ToLower(c.Title + "\n" + c.Content)

	for _, pattern := range NumberedSectionPatterns {
		if pattern.MatchString(combined) {
			return base * ListBoostNumbered
		}
	}
	for _, marker := range PlannedContentMarkers {
		if strings.Contains(combined, strings.ToLower(marker)) {
			return base * ListBoostPlanned
		}
	}
	return base
}

func isGenericTerm(keyword, stem string, ubiquitous map[string]struct{}) bool {
	if _, ok := GenericTitleTerms[keyword]; ok {
		return true
	}
	if _, ok := GenericTitleTerms[stem]; ok {
		return true
	}
	if ubiquitous != nil {
		if _, ok := ubiquitous[keyword]; ok {
			return true
		}
		if _, ok := ubiquitous[stem]; ok {
			return true
		}
	}
	return false
}
