package scoring

import "strings"

// Stem strips common English suffixes to produce an approximate stem used
// for substring matching. A shorter stem naturally matches more
// morphological variants: Stem("prices") is "pric", a substring of
// "pricing", "price", "priced". Minimum-length guards keep short words like
// "doing" from being over-stripped into meaningless 2-char stems.
//
// Stems only widen matching; they are never surfaced to clients.
func Stem(word string) string {
	w := strings.ToLower(word)
	n := len(w)

	// Longer suffixes first. Order matters.
	if n > 7 {
		switch {
		case strings.HasSuffix(w, "tion"),
			strings.HasSuffix(w, "ment"),
			strings.HasSuffix(w, "ness"),
			strings.HasSuffix(w, "ible"),
			strings.HasSuffix(w, "able"):
			return w[:n-4]
		}
	}
	if n > 6 {
		if strings.HasSuffix(w, "ing") || strings.HasSuffix(w, "ies") {
			return w[:n-3]
		}
	}
	if n > 5 {
		switch {
		case strings.HasSuffix(w, "ed") && !strings.HasSuffix(w, "eed"):
			return w[:n-2]
		case strings.HasSuffix(w, "er"),
			strings.HasSuffix(w, "ly"),
			strings.HasSuffix(w, "es"):
			return w[:n-2]
		}
	}
	if n > 4 {
		if strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			return w[:n-1]
		}
		if strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "ee") {
			return w[:n-1]
		}
	}
	return w
}
