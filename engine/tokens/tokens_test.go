package tokens

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCountEmpty(t *testing.T) {
	assert.Zero(t, Count(""))
}

func TestCountMonotonic(t *testing.T) {
	short := "budget arithmetic"
	long := strings.Repeat(short+" ", 20)
	assert.Greater(t, Count(long), Count(short))
}

func TestEstimate(t *testing.T) {
	assert.Zero(t, Estimate(""))
	assert.Equal(t, 1, Estimate("ab"))
	assert.Equal(t, 25, Estimate(strings.Repeat("a", 100)))
}

func TestTruncateZeroBudget(t *testing.T) {
	assert.Empty(t, Truncate("anything", 0))
}

func TestTruncateFitsUnchanged(t *testing.T) {
	text := "short text"
	assert.Equal(t, text, Truncate(text, 1000))
}

func TestTruncateUnderBudget(t *testing.T) {
	text := strings.Repeat("one two three four five six. ", 200)
	for _, budget := range []int{5, 50, 500} {
		got := Truncate(text, budget)
		assert.LessOrEqual(t, Count(got), budget, "budget %d", budget)
		assert.True(t, strings.HasPrefix(text, got))
	}
}

func TestTruncatePrefersLineBoundary(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("a line of documentation content goes here\n")
	}
	got := Truncate(b.String(), 100)
	if got != "" {
		assert.False(t, strings.HasSuffix(got, "a line"), "cut should land on a line boundary when one is near")
	}
}

func TestTruncateValidUTF8(t *testing.T) {
	text := strings.Repeat("héllo wörld 📝 ", 300)
	got := Truncate(text, 40)
	assert.True(t, utf8.ValidString(got))
}
