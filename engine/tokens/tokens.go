// Package tokens provides deterministic token counting for budget arithmetic.
//
// Counts use the cl100k_base BPE vocabulary so that client and server agree
// on budget consumption. The encoder is loaded lazily and reused; when it
// cannot be loaded (offline environments) a chars/4 heuristic keeps the
// arithmetic consistent, if less precise.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

var (
	once    sync.Once
	encoder *tiktoken.Tiktoken
)

func getEncoder() *tiktoken.Tiktoken {
	once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			encoder = enc
		}
	})
	return encoder
}

// Count returns the number of tokens in text.
func Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := getEncoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// Estimate is the chars/4 fallback used when the encoder is unavailable and
// for cheap pre-filters that do not need exact counts.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// Truncate returns the longest prefix of text that fits within budget tokens,
// cut at a line boundary where possible.
func Truncate(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if Count(text) <= budget {
		return text
	}

	// Binary search on byte length, then back off to the last newline.
	lo, hi := 0, len(text)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if Count(text[:mid]) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	cut := text[:lo]
	for i := len(cut) - 1; i > 0; i-- {
		if cut[i] == '\n' {
			if i > len(cut)/2 {
				return cut[:i]
			}
			break
		}
	}
	return cut
}
