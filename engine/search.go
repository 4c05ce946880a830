package engine

import (
	"fmt"
	"regexp"

	"github.com/snipara/rlm/models"
)

// Search runs a regex over the index line buffer and attributes each match
// to its containing section. Results stop at maxResults; TotalFound keeps
// counting so the client sees how much was cut.
func Search(idx *DocumentIndex, pattern string, caseSensitive bool, maxResults int) (*models.SearchResult, error) {
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	res := &models.SearchResult{Pattern: pattern, Matches: []models.SearchMatch{}}
	for _, f := range idx.Files {
		lines := idx.Lines[f.StartLine:f.EndLine]
		for i, line := range lines {
			if !re.MatchString(line) {
				continue
			}
			res.TotalFound++
			if len(res.Matches) >= maxResults {
				res.Truncated = true
				continue
			}
			m := models.SearchMatch{File: f.Path, Line: i + 1, Content: line}
			if sec, ok := idx.SectionAt(f.Path, i); ok {
				m.Section = sec.Title
			}
			res.Matches = append(res.Matches, m)
		}
	}
	return res, nil
}
