package engine

import (
	"strings"

	"github.com/snipara/rlm/engine/scoring"
)

// AbstractQueryMinSections is the minimum delivered-section floor for
// abstract queries.
const AbstractQueryMinSections = 5

// questionPhrases mark interrogative fragments for complexity detection.
// Ordered longest-first so a prefix ("how do") never double-counts an
// occurrence of a longer phrase ("how does").
var questionPhrases = []string{
	"when should", "where are", "where is", "why does", "how does",
	"what are", "what is", "why is", "how can", "how do", "which",
}

// decompositionMarkers signal multi-part work in a query.
var decompositionMarkers = []string{
	" and then ", " after that ", " as well as ", " step by step",
	"end-to-end", "end to end", " versus ", " vs ", " compare ",
}

// IsAbstractQuery reports whether the query needs expansion and the
// minimum-section floor: it contains an expansion-dictionary key or opens
// with a conceptual prefix.
func IsAbstractQuery(query string, extra map[string][]string) bool {
	lower := strings.ToLower(query)
	for key := range scoring.QueryExpansions {
		if strings.Contains(lower, key) {
			return true
		}
	}
	for key := range extra {
		if strings.Contains(lower, strings.ToLower(key)) {
			return true
		}
	}
	return scoring.HasConceptualPrefix(query)
}

// QueryComplexity classifies a query as "simple" or "complex". Complex
// queries carry multiple question phrases, run past 25 words, or contain
// decomposition markers.
func QueryComplexity(query string) string {
	lower := strings.ToLower(query)

	if len(strings.Fields(lower)) > 25 {
		return "complex"
	}

	questions := 0
	rest := lower
	for _, p := range questionPhrases {
		if n := strings.Count(rest, p); n > 0 {
			questions += n
			rest = strings.ReplaceAll(rest, p, " ")
		}
	}
	if questions >= 2 {
		return "complex"
	}

	for _, m := range decompositionMarkers {
		if strings.Contains(lower, m) {
			return "complex"
		}
	}
	return "simple"
}

// RoutingRecommendation advises the client where to run follow-up work:
// simple queries resolve directly from the returned context, complex ones
// benefit from the runtime's decomposition loop.
func RoutingRecommendation(query string) (recommendation, reason string, confidence float64) {
	if QueryComplexity(query) == "complex" {
		return "rlm_runtime", "query has multiple parts; decompose and iterate", 0.75
	}
	return "direct", "single focused question; answer from returned context", 0.85
}

// DecomposeQuery splits a complex query into focused sub-queries by
// question boundaries and coordination markers.
func DecomposeQuery(query string) []string {
	parts := []string{query}

	split := func(in []string, sep string) []string {
		var out []string
		for _, p := range in {
			for _, piece := range strings.Split(p, sep) {
				piece = strings.TrimSpace(piece)
				if piece != "" {
					out = append(out, piece)
				}
			}
		}
		return out
	}

	parts = split(parts, "?")
	for _, sep := range []string{" and then ", " after that ", " as well as ", "; "} {
		parts = split(parts, sep)
	}

	// Keep only fragments substantial enough to query on.
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(strings.Fields(p)) >= 3 {
			out = append(out, p)
		}
		if len(out) == 5 {
			break
		}
	}
	if len(out) == 0 {
		out = append(out, strings.TrimSpace(query))
	}
	return out
}
