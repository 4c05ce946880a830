package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAbstractQuery(t *testing.T) {
	assert.True(t, IsAbstractQuery("tell me about the architecture", nil))
	assert.True(t, IsAbstractQuery("how does indexing work", nil))
	assert.False(t, IsAbstractQuery("redis connection string", nil))
}

func TestIsAbstractQueryProjectOverride(t *testing.T) {
	extra := map[string][]string{"billing flow": {"invoice", "stripe"}}
	assert.True(t, IsAbstractQuery("explain the Billing Flow", extra))
	// Even without the override, the conceptual "explain" opener qualifies.
	assert.True(t, IsAbstractQuery("explain the billing", nil))
}

func TestQueryComplexity(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"pricing tiers", "simple"},
		{"how does auth work", "simple"},
		{"how do I rotate keys", "simple"},
		{"what is caching and how does expiry work", "complex"},
		{"how does auth work and how does indexing interact with it? what is the cache story", "complex"},
		{"set up the project and then deploy it", "complex"},
		{"compare the swarm coordinator versus a plain queue", "complex"},
		{strings.Repeat("word ", 26), "complex"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QueryComplexity(tt.query), "query %q", tt.query)
	}
}

func TestRoutingRecommendation(t *testing.T) {
	rec, reason, conf := RoutingRecommendation("pricing tiers")
	assert.Equal(t, "direct", rec)
	assert.NotEmpty(t, reason)
	assert.Greater(t, conf, 0.0)

	rec, _, _ = RoutingRecommendation("how does auth work")
	assert.Equal(t, "direct", rec)

	rec, _, _ = RoutingRecommendation("set up auth and then wire the webhooks step by step")
	assert.Equal(t, "rlm_runtime", rec)
}

func TestDecomposeQuery(t *testing.T) {
	parts := DecomposeQuery("how does auth work? how are documents indexed and then ranked against a query?")

	require.GreaterOrEqual(t, len(parts), 2)
	assert.Contains(t, parts[0], "auth")
}

func TestDecomposeQueryCapsAtFive(t *testing.T) {
	parts := DecomposeQuery("what is a? what is b now? what is c now? what is d now? what is e now? what is f now?")
	assert.Len(t, parts, 5)
}

func TestDecomposeQuerySimpleFallsBackToWhole(t *testing.T) {
	parts := DecomposeQuery("redis")
	require.Len(t, parts, 1)
	assert.Equal(t, "redis", parts[0])
}
