package scoring

import (
	"math"
	"sort"
	"strings"
)

// WeightProfile is the (keyword, semantic) weight pair used by fusion.
type WeightProfile struct {
	Keyword  float64
	Semantic float64
}

// Ranked is one entry of a ranking, sorted descending by score.
type Ranked struct {
	ID    string
	Score float64
}

// ClassifyQueryWeights returns the weight profile adapted to the query.
//
// Heuristics, no model call:
//  1. Strong keyword signal (top score well above the median, so likely an
//     exact title match) combined with a specific technical term picks the
//     keyword-heavy profile.
//  2. A strong keyword signal without specific terms stays balanced, to
//     avoid over-committing to a possibly stale title match.
//  3. Conceptual openings ("how does", "why", "explain") pick the
//     semantic-heavy profile.
//  4. Everything else is balanced.
func ClassifyQueryWeights(query string, keywordScores map[string]float64) WeightProfile {
	queryLower := strings.ToLower(query)

	positive := make([]float64, 0, len(keywordScores))
	for _, v := range keywordScores {
		if v > 0 {
			positive = append(positive, v)
		}
	}

	strongKeyword := false
	if len(positive) > 0 {
		sort.Float64s(positive)
		top := positive[len(positive)-1]
		median := positive[len(positive)/2]
		strongKeyword = top > 15 && (median == 0 || top/median >= 3)
	}

	hasSpecific := false
	for _, w := range wordSplit.Split(queryLower, -1) {
		if len(w) <= 2 {
			continue
		}
		if _, ok := SpecificQueryTerms[w]; ok {
			hasSpecific = true
			break
		}
		if _, ok := SpecificQueryTerms[Stem(w)]; ok {
			hasSpecific = true
			break
		}
	}

	isConceptual := false
	for _, p := range ConceptualPrefixes {
		if strings.HasPrefix(queryLower, p) {
			isConceptual = true
			break
		}
	}

	switch {
	case strongKeyword && hasSpecific:
		return HybridKeywordHeavy
	case strongKeyword:
		return HybridBalanced
	case isConceptual:
		return HybridSemanticHeavy
	default:
		return HybridBalanced
	}
}

// RRFFusion combines the keyword and semantic rankings by reciprocal rank:
//
//	rrf(d) = w_kw / (k + rank_kw(d)) + w_sem / (k + rank_sem(d))
//
// Rank-based fusion is robust to score-magnitude mismatch between the two
// signals. Sections absent from a ranking receive the pessimistic rank
// len(ranking)+1. Ties break on section id so rankings stay deterministic.
func RRFFusion(keywordScores, semanticScores map[string]float64, profile WeightProfile, k int) []Ranked {
	kwRank := buildRanks(keywordScores)
	semRank := buildRanks(semanticScores)
	defaultKw := len(kwRank) + 1
	defaultSem := len(semRank) + 1

	union := make(map[string]struct{}, len(kwRank)+len(semRank))
	for id := range kwRank {
		union[id] = struct{}{}
	}
	for id := range semRank {
		union[id] = struct{}{}
	}

	fused := make([]Ranked, 0, len(union))
	for id := range union {
		rk, ok := kwRank[id]
		if !ok {
			rk = defaultKw
		}
		rs, ok := semRank[id]
		if !ok {
			rs = defaultSem
		}
		score := profile.Keyword/float64(k+rk) + profile.Semantic/float64(k+rs)
		fused = append(fused, Ranked{ID: id, Score: score})
	}

	sortRanked(fused)
	return fused
}

func buildRanks(scores map[string]float64) map[string]int {
	entries := make([]Ranked, 0, len(scores))
	for id, sc := range scores {
		if sc > 0 {
			entries = append(entries, Ranked{ID: id, Score: sc})
		}
	}
	sortRanked(entries)

	ranks := make(map[string]int, len(entries))
	for i, e := range entries {
		ranks[e.ID] = i + 1
	}
	return ranks
}

func sortRanked(entries []Ranked) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ID < entries[j].ID
	})
}

// NormalizeGraded maps raw fused scores onto a readable 0-100 scale. Rank 1
// gets 100; later ranks combine exponential rank decay with the raw score
// ratio (40/60), floored at 1 so nothing relevant rounds to zero. Ordering
// is preserved.
func NormalizeGraded(scores []Ranked, decayFactor float64) []Ranked {
	if len(scores) == 0 {
		return nil
	}
	if decayFactor == 0 {
		decayFactor = GradedDecay
	}

	top := scores[0].Score
	if top <= 0 {
		top = 1.0
	}

	result := make([]Ranked, 0, len(scores))
	result = append(result, Ranked{ID: scores[0].ID, Score: 100.0})

	for i := 1; i < len(scores); i++ {
		rankFactor := math.Pow(decayFactor, float64(i))
		scoreFactor := scores[i].Score / top
		graded := 100 * (0.4*rankFactor + 0.6*scoreFactor)
		graded = math.Round(graded*10) / 10
		if graded < 1.0 {
			graded = 1.0
		}
		result = append(result, Ranked{ID: scores[i].ID, Score: graded})
	}
	return result
}

// HybridSearch runs the whole pipeline: weight classification, RRF fusion,
// graded normalization.
func HybridSearch(keywordScores, semanticScores map[string]float64, query string) []Ranked {
	profile := ClassifyQueryWeights(query, keywordScores)
	fused := RRFFusion(keywordScores, semanticScores, profile, RRFK)
	return NormalizeGraded(fused, GradedDecay)
}
