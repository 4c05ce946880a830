package scoring

import "math"

// MinChunkSimilarity is the cosine floor below which chunk hits are ignored.
const MinChunkSimilarity = 0.3

// ChunkTopK bounds the nearest-neighbor search over precomputed chunks.
const ChunkTopK = 50

// OnTheFlyLimit bounds fallback embedding when no chunks exist.
const OnTheFlyLimit = 30

// OnTheFlyPrefixChars is how much of a section body joins the title in the
// fallback embedding text.
const OnTheFlyPrefixChars = 120

// ChunkHit is one nearest-neighbor result mapped back to its source lines.
type ChunkHit struct {
	File       string
	StartLine  int
	EndLine    int
	Similarity float64
}

// SectionSpan locates a section for chunk folding.
type SectionSpan struct {
	ID        string
	File      string
	StartLine int
	EndLine   int
}

// FoldChunkScores maps per-chunk similarities onto sections. A chunk counts
// toward every section it overlaps by line range within the same file; a
// section's semantic score is the max over its overlapping chunks.
func FoldChunkScores(sections []SectionSpan, hits []ChunkHit) map[string]float64 {
	scores := make(map[string]float64)
	for _, h := range hits {
		if h.Similarity < MinChunkSimilarity {
			continue
		}
		for _, s := range sections {
			if s.File != h.File {
				continue
			}
			if h.StartLine < s.EndLine && h.EndLine > s.StartLine {
				if h.Similarity > scores[s.ID] {
					scores[s.ID] = h.Similarity
				}
			}
		}
	}
	return scores
}

// CosineSimilarity returns the cosine of the angle between two vectors,
// clamped to [0, 1]. Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// OnTheFlyText builds the fallback embedding text for a section.
func OnTheFlyText(title, content string) string {
	prefix := content
	if len(prefix) > OnTheFlyPrefixChars {
		prefix = prefix[:OnTheFlyPrefixChars]
	}
	if prefix == "" {
		return title
	}
	return title + " " + prefix
}
