// Package engine implements the retrieval core: the in-memory document
// index, hybrid ranking, budget-aware context assembly, and the tool
// dispatcher that the transports call into.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/snipara/rlm/engine/scoring"
	"github.com/snipara/rlm/engine/tokens"
)

// UbiquitousTitleShare is the share of section titles a term must appear in
// to be disqualified from the distinctive-title bonus.
const UbiquitousTitleShare = 0.7

// UbiquitousMinSections guards the ubiquitous set on small corpora, where
// the share threshold misfires.
const UbiquitousMinSections = 20

// Section is one heading-delimited region of a document. Immutable once
// indexed; re-indexing produces a new set.
type Section struct {
	ID        string
	Title     string
	Content   string
	File      string
	StartLine int
	EndLine   int
	Level     int

	tokenCount int
}

// TokenCount lazily counts and caches the section's tokens.
func (s *Section) TokenCount() int {
	if s.tokenCount == 0 && s.Content != "" {
		s.tokenCount = tokens.Count(s.Content)
	}
	return s.tokenCount
}

// IndexedFile records one file's span in the index line buffer.
type IndexedFile struct {
	Path      string
	StartLine int
	EndLine   int
}

// DocumentIndex is the per-project in-memory corpus: files, a concatenated
// line buffer, the sections, and the ubiquitous-keyword set. It is the unit
// of cache invalidation; any document mutation invalidates it.
type DocumentIndex struct {
	ProjectID string
	Files     []IndexedFile
	Lines     []string
	Sections  []Section

	Ubiquitous map[string]struct{}

	byID map[string]*Section
}

// IndexedDocument is the input to BuildIndex.
type IndexedDocument struct {
	Path    string
	Content string
}

// BuildIndex parses every document into sections and assembles the
// project's index. Documents are indexed in the given order; file line
// boundaries are [start, end) offsets into the shared line buffer.
func BuildIndex(projectID string, docs []IndexedDocument) *DocumentIndex {
	idx := &DocumentIndex{
		ProjectID: projectID,
		byID:      make(map[string]*Section),
	}

	for _, doc := range docs {
		lines := strings.Split(doc.Content, "\n")
		start := len(idx.Lines)
		idx.Lines = append(idx.Lines, lines...)
		idx.Files = append(idx.Files, IndexedFile{
			Path:      doc.Path,
			StartLine: start,
			EndLine:   start + len(lines),
		})
		idx.Sections = append(idx.Sections, parseSections(doc.Path, lines)...)
	}

	for i := range idx.Sections {
		idx.byID[idx.Sections[i].ID] = &idx.Sections[i]
	}
	idx.Ubiquitous = ubiquitousKeywords(idx.Sections)

	return idx
}

// SectionByID resolves a section id, typically from a reference-mode chunk
// id.
func (idx *DocumentIndex) SectionByID(id string) (*Section, bool) {
	s, ok := idx.byID[id]
	return s, ok
}

// FileLines returns the line slice of one indexed file.
func (idx *DocumentIndex) FileLines(path string) []string {
	for _, f := range idx.Files {
		if f.Path == path {
			return idx.Lines[f.StartLine:f.EndLine]
		}
	}
	return nil
}

// SectionAt returns the section of path covering the file-relative line.
func (idx *DocumentIndex) SectionAt(path string, line int) (*Section, bool) {
	for i := range idx.Sections {
		s := &idx.Sections[i]
		if s.File == path && line >= s.StartLine && line < s.EndLine {
			return s, true
		}
	}
	return nil, false
}

// Candidates adapts the sections for the keyword scorer.
func (idx *DocumentIndex) Candidates() []scoring.Candidate {
	out := make([]scoring.Candidate, len(idx.Sections))
	for i, s := range idx.Sections {
		out[i] = scoring.Candidate{
			ID:      s.ID,
			Title:   s.Title,
			Content: s.Content,
			File:    s.File,
			Level:   s.Level,
		}
	}
	return out
}

// Spans adapts the sections for chunk-score folding.
func (idx *DocumentIndex) Spans() []scoring.SectionSpan {
	out := make([]scoring.SectionSpan, len(idx.Sections))
	for i, s := range idx.Sections {
		out[i] = scoring.SectionSpan{
			ID:        s.ID,
			File:      s.File,
			StartLine: s.StartLine,
			EndLine:   s.EndLine,
		}
	}
	return out
}

// TotalTokens sums the token counts of every section.
func (idx *DocumentIndex) TotalTokens() int {
	total := 0
	for i := range idx.Sections {
		total += idx.Sections[i].TokenCount()
	}
	return total
}

// parseSections splits one file's lines into heading-delimited sections.
// Lines are file-relative [start, end). Headings inside fenced code blocks
// are ignored. A non-empty preamble before the first heading becomes a
// level-1 section titled after the file.
func parseSections(path string, lines []string) []Section {
	type boundary struct {
		line  int
		level int
		title string
	}

	var boundaries []boundary
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if level, title, ok := parseHeading(line); ok {
			boundaries = append(boundaries, boundary{line: i, level: level, title: title})
		}
	}

	var sections []Section
	appendSection := func(title string, level, start, end int) {
		content := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(content) == "" {
			return
		}
		sections = append(sections, Section{
			ID:        sectionID(path, start, title),
			Title:     title,
			Content:   content,
			File:      path,
			StartLine: start,
			EndLine:   end,
			Level:     level,
		})
	}

	if len(boundaries) == 0 {
		appendSection(fileTitle(path), 1, 0, len(lines))
		return sections
	}

	if boundaries[0].line > 0 {
		appendSection(fileTitle(path), 1, 0, boundaries[0].line)
	}
	for i, b := range boundaries {
		end := len(lines)
		if i+1 < len(boundaries) {
			end = boundaries[i+1].line
		}
		appendSection(b.title, b.level, b.line, end)
	}
	return sections
}

func parseHeading(line string) (level int, title string, ok bool) {
	i := 0
	for i < len(line) && line[i] == '#' {
		i++
	}
	if i == 0 || i > 6 || i >= len(line) || line[i] != ' ' {
		return 0, "", false
	}
	title = strings.TrimSpace(line[i+1:])
	if title == "" {
		return 0, "", false
	}
	return i, title, true
}

func fileTitle(path string) string {
	base := path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	return base
}

func sectionID(path string, startLine int, title string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", path, startLine, title)))
	return hex.EncodeToString(sum[:])[:16]
}

// ubiquitousKeywords collects terms appearing in more than 70% of section
// titles. The set is empty below UbiquitousMinSections, where the share
// threshold marks nearly everything.
func ubiquitousKeywords(sections []Section) map[string]struct{} {
	out := make(map[string]struct{})
	if len(sections) < UbiquitousMinSections {
		return out
	}

	counts := make(map[string]int)
	for i := range sections {
		seen := make(map[string]struct{})
		for _, kw := range scoring.ExtractKeywords(sections[i].Title) {
			if _, dup := seen[kw]; dup {
				continue
			}
			seen[kw] = struct{}{}
			counts[kw]++
		}
	}

	threshold := UbiquitousTitleShare * float64(len(sections))
	for kw, n := range counts {
		if float64(n) > threshold {
			out[kw] = struct{}{}
		}
	}
	return out
}
