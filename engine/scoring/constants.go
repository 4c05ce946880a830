// Package scoring implements the hybrid keyword+semantic ranking core:
// stemmed keyword scoring, semantic score folding, reciprocal rank fusion
// with adaptive weights, and graded score normalization.
package scoring

import "regexp"

// Stop words are excluded from keyword scoring to prevent false title
// matches. Without this, "what are prices?" ranks "What Happens When Limits
// Are Exceeded" above actual pricing content because "what" and "are" get
// the title weight.
var StopWords = newSet(
	"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "do", "does", "did", "will", "would", "could",
	"should", "may", "might", "shall", "can", "need",
	"to", "of", "in", "for", "on", "with", "at", "by", "from", "as", "into",
	"through", "during", "before", "after", "above", "below", "between",
	"out", "off", "over", "under", "again", "further",
	"then", "once", "here", "there", "when", "where", "why", "how", "all",
	"both", "each", "few", "more", "most", "other", "some", "such", "no",
	"nor", "not", "only", "own", "same", "so", "than", "too", "very", "just",
	"because", "but", "and", "or", "if",
	"what", "which", "who", "whom", "this", "that", "these", "those", "it",
	"its", "my", "your", "his", "her", "our", "their", "about", "up", "also",
	"any", "many", "much",
	"value", "proposition", "core", "main", "key", "primary", "work",
	"works", "working", "feature", "features", "thing", "things",
	"something", "everything",
	"use", "used", "using", "get", "gets", "getting", "make", "makes",
	"making", "see", "sees", "seeing", "know", "knows", "knowing", "think",
	"thinks", "want", "wants", "wanting", "like", "likes",
)

// Adaptive hybrid weight profiles (keyword, semantic). High keyword
// confidence boosts keyword weight to keep precise title matches on top;
// conceptual queries boost semantic weight.
var (
	HybridKeywordHeavy  = WeightProfile{Keyword: 0.60, Semantic: 0.40}
	HybridBalanced      = WeightProfile{Keyword: 0.40, Semantic: 0.60}
	HybridSemanticHeavy = WeightProfile{Keyword: 0.25, Semantic: 0.75}
)

// RRFK is the reciprocal rank fusion constant. The Cormack et al. standard
// is 60; 45 trades a little recall for precision at the top of the list.
const RRFK = 45

// GradedDecay is the per-rank exponential decay used by graded score
// normalization.
const GradedDecay = 0.94

// Generic title terms get reduced title weight (1.5x instead of 5x) because
// they appear in many unrelated sections and cause false matches.
var GenericTitleTerms = newSet(
	"snipara", "rlm", "mcp",
	"tools", "tool", "guide", "reference", "overview", "docs",
	"how", "what", "when", "where", "why",
	"using", "use", "get", "set", "run", "make",
	"available", "not", "error", "issue", "troubleshoot",
)

// Query terms that signal structured/factual content. These trigger the
// keyword-heavy profile when the keyword signal is also strong.
var SpecificQueryTerms = newSet(
	"pricing", "price", "cost", "tier", "plan", "stack", "version", "model",
	"schema", "table", "endpoint", "api", "command", "config", "database",
	"deploy", "deployment", "auth", "authentication",
	"value", "proposition", "feature", "benefit", "overview",
	"architecture", "workflow", "integration", "limit", "rate",
	"hybrid", "semantic", "keyword", "search", "query", "token", "context",
	"chunk", "section", "document",
)

// Conceptual query prefixes trigger the semantic-heavy profile.
var ConceptualPrefixes = []string{
	"how does", "how do", "how is", "how are", "how can",
	"why does", "why do", "why is", "why are",
	"what is", "what are", "what does", "what do",
	"explain", "describe", "compare", "tell me about", "overview of",
	"what happens when", "what is the difference", "what are the tradeoffs",
	"value proposition", "core value", "main purpose", "key features",
}

// List-intent phrases. Queries containing one of these boost sections whose
// title or body looks like an enumerated item.
var ListQueryPatterns = newSet(
	"what are the", "list the", "list all", "which",
	"what to write", "what to do",
	"next articles", "next tasks", "next steps",
	"upcoming", "planned", "todo", "to-do", "roadmap",
)

// NumberedSectionPatterns match enumerated list items in titles or bodies.
var NumberedSectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?mi)^#+\s*(?:article|task|step|item|feature|issue|bug|story)\s*#?\d+`),
	regexp.MustCompile(`(?m)^#+\s*\d+[\.\):]`),
	regexp.MustCompile(`(?m)^\d+[\.\)]`),
	regexp.MustCompile(`#\d+\b`),
}

// PlannedContentMarkers indicate planned/unpublished/future content.
var PlannedContentMarkers = []string{
	"📝", "unpublished", "planned", "draft", "todo", "upcoming",
	"next:", "status:", "wip", "in progress", "pending",
}

// QueryExpansions maps abstract terms to the concrete keywords that actually
// appear in documentation. Abstract queries like "architecture" otherwise
// miss sections that only name components.
var QueryExpansions = map[string][]string{
	"architecture": {
		"snipara-mcp", "FastAPI", "Railway", "Vercel", "Neon",
		"component", "three-component", "PostgreSQL", "Redis",
	},
	"three-component": {
		"snipara-mcp", "FastAPI", "Vercel", "Railway", "PostgreSQL",
	},
	"components": {
		"snipara-mcp", "FastAPI", "Vercel", "web app", "MCP server",
	},
	"tech stack": {
		"Next.js", "FastAPI", "Prisma", "PostgreSQL", "Railway",
		"Tailwind", "DaisyUI", "Stripe",
	},
	"stack": {
		"Next.js", "FastAPI", "Prisma", "PostgreSQL", "Railway",
	},
	"deployment": {
		"Railway", "Vercel", "Docker", "snipara-fastapi", "monorepo",
		"main branch", "dev branch", "auto-deploy",
	},
	"deploy": {
		"Railway", "Vercel", "Docker", "production", "staging",
	},
	"mcp tools": {
		"rlm_context_query", "rlm_ask", "rlm_search", "rlm_decompose",
		"rlm_multi_query", "rlm_plan", "rlm_remember", "rlm_recall",
	},
	"tools": {
		"rlm_context_query", "rlm_ask", "rlm_search", "rlm_decompose",
	},
	"value proposition": {
		"context optimization", "token reduction", "90%", "LLM-agnostic",
		"high margins", "no vendor lock-in",
	},
	"shared context": {
		"budget allocation", "MANDATORY", "BEST_PRACTICES", "GUIDELINES",
		"REFERENCE", "40%", "30%", "20%", "10%",
	},
	"budget allocation": {
		"MANDATORY", "BEST_PRACTICES", "GUIDELINES", "REFERENCE",
		"40%", "30%", "20%", "10%", "shared context",
	},
	"pricing": {
		"FREE", "PRO", "TEAM", "ENTERPRISE", "$19", "$49", "$499",
		"queries/mo", "100", "5000", "20000",
	},
	"limits": {
		"rate limit", "monthly", "429", "exceeded", "reset_at",
	},
	"memory": {
		"rlm_remember", "rlm_recall", "rlm_memories", "rlm_forget",
		"ttl_days", "agent", "session", "decision", "learning",
	},
	"agent": {
		"memory", "swarm", "rlm_remember", "rlm_recall", "coordination",
	},
}

// Scoring parameters.
const (
	TitleWeightDistinctive = 5.0
	TitleWeightGeneric     = 1.5
	BodyWeight             = 1.0
	// Simplified BM25 length normalization: avgdl in chars and b.
	BM25AvgDocLen = 2000.0
	BM25B         = 0.75

	ListBoostNumbered = 1.5
	ListBoostPlanned  = 1.3
	PhraseBoost       = 3.0
	InternalPenalty   = 0.1
)

// InternalPathPatterns mark files that are working notes rather than
// documentation; matching sections keep a tenth of their score.
var InternalPathPatterns = []string{
	".claude/", ".cursorrules", "/internal/", "/debug/", "debug", "session",
}

func newSet(items ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}
