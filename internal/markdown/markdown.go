// Package markdown provides line-level addressing into markdown documents:
// splitting content into sections keyed by level-2 headings, extracting
// line-numbered ranges, and performing section or exact-text replacements.
//
// All functions are pure and recompute from the content string on every
// call. Content is the single source of truth; nothing here caches parse
// results. Lines are 1-indexed and sections are 0-indexed; both are part
// of the contract consumed by agent tooling and must not change.
package markdown

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Section describes one level-2 section of a document. Line bounds are
// 1-indexed and inclusive.
type Section struct {
	Index     int    `json:"index"`
	Heading   string `json:"heading"`
	LineStart int    `json:"lineStart"`
	LineEnd   int    `json:"lineEnd"`
	WordCount int    `json:"wordCount"`
}

// LineRange is a line-numbered slice of a document.
type LineRange struct {
	Content string `json:"content"`
	HasMore bool   `json:"hasMore"`
}

// SectionContent is a single section with its line-numbered content.
type SectionContent struct {
	Heading   string `json:"heading"`
	Content   string `json:"content"`
	LineStart int    `json:"lineStart"`
	LineEnd   int    `json:"lineEnd"`
	WordCount int    `json:"wordCount"`
}

// ErrTextNotFound is returned by ReplaceExactText when oldText does not
// occur in the document.
var ErrTextNotFound = errors.New("old text not found in document")

// AmbiguousMatchError is returned by ReplaceExactText when oldText occurs
// more than once. Count lets the caller supply more surrounding context
// and retry.
type AmbiguousMatchError struct {
	Count int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("text matches %d locations, provide more surrounding context to disambiguate", e.Count)
}

// cjk reports whether r counts as a single word on its own.
func cjk(r rune) bool {
	return (r >= 0x4e00 && r <= 0x9fff) ||
		(r >= 0x3400 && r <= 0x4dbf) ||
		(r >= 0xf900 && r <= 0xfaff)
}

// CountWords counts words in mixed CJK/Latin text. Each CJK character is
// one word; the rest is split on whitespace and each token is one word.
func CountWords(text string) int {
	if text == "" {
		return 0
	}
	count := 0
	var rest strings.Builder
	for _, r := range text {
		if cjk(r) {
			count++
			rest.WriteByte(' ')
		} else {
			rest.WriteRune(r)
		}
	}
	return count + len(strings.Fields(rest.String()))
}

// CountLines counts lines in content. Empty content has zero lines.
func CountLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

// headingText matches a markdown heading of exactly the given level
// ("## foo" for level 2) and returns the trimmed heading text.
func headingText(line string, level int) (string, bool) {
	rest := line
	for i := 0; i < level; i++ {
		var ok bool
		rest, ok = strings.CutPrefix(rest, "#")
		if !ok {
			return "", false
		}
	}
	if strings.HasPrefix(rest, "#") {
		return "", false
	}
	r, size := utf8.DecodeRuneInString(rest)
	if size == 0 || !unicode.IsSpace(r) || len(rest) == size {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// openSection accumulates one section while scanning.
type openSection struct {
	heading   string
	lineStart int
	lines     []string
}

func (s *openSection) finish(lastLineIdx, index int) Section {
	return Section{
		Index:     index,
		Heading:   s.heading,
		LineStart: s.lineStart,
		LineEnd:   lastLineIdx + 1,
		WordCount: CountWords(strings.Join(s.lines, "\n")),
	}
}

// ParseSections splits markdown content into sections delimited by level-2
// headings. A leading "# title" line is skipped only while no section has
// been opened yet; any later "#" line is ordinary content. Content before
// the first "##" opens an implicit "(intro)" section. The line that opens
// the intro is covered by its line range but excluded from its accumulated
// text, so the intro word count does not include that first line.
func ParseSections(content string) []Section {
	if content == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	var sections []Section
	var current *openSection

	for i, line := range lines {
		if heading, ok := headingText(line, 2); ok {
			if current != nil {
				sections = append(sections, current.finish(i-1, len(sections)))
			}
			current = &openSection{
				heading:   heading,
				lineStart: i + 1,
				lines:     []string{line},
			}
			continue
		}

		if _, ok := headingText(line, 1); ok && len(sections) == 0 && current == nil {
			// Document title, not a section boundary.
			continue
		}

		if current == nil {
			current = &openSection{heading: "(intro)", lineStart: i + 1}
			continue
		}
		current.lines = append(current.lines, line)
	}

	if current != nil {
		sections = append(sections, current.finish(len(lines)-1, len(sections)))
	}
	return sections
}

// GetLineRange extracts lines [offset, offset+limit) of content, 1-indexed.
// Each line is prefixed with its line number, left-padded to the width of
// the largest line number in the slice, followed by "| ". An offset beyond
// the document yields empty content and HasMore=false.
func GetLineRange(content string, offset, limit int) LineRange {
	lines := strings.Split(content, "\n")
	startIdx := max(0, offset-1)
	endIdx := min(len(lines), startIdx+limit)

	padWidth := len(strconv.Itoa(endIdx))
	var sb strings.Builder
	for i := startIdx; i < endIdx; i++ {
		if i > startIdx {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%*d| %s", padWidth, i+1, lines[i])
	}

	return LineRange{
		Content: sb.String(),
		HasMore: endIdx < len(lines),
	}
}

// GetSectionContent returns one section by index with line-numbered
// content, or nil when the index does not exist.
func GetSectionContent(content string, sectionIndex int) *SectionContent {
	section, ok := findSection(content, sectionIndex)
	if !ok {
		return nil
	}

	lr := GetLineRange(content, section.LineStart, section.LineEnd-section.LineStart+1)
	return &SectionContent{
		Heading:   section.Heading,
		Content:   lr.Content,
		LineStart: section.LineStart,
		LineEnd:   section.LineEnd,
		WordCount: section.WordCount,
	}
}

// ReplaceSectionContent splices newSectionContent over the line range of
// the given section, leaving every other line untouched. The replacement
// is purely textual: it need not keep (or even contain) the section's
// heading. Returns ok=false when the section index does not exist.
func ReplaceSectionContent(fullContent string, sectionIndex int, newSectionContent string) (string, bool) {
	section, ok := findSection(fullContent, sectionIndex)
	if !ok {
		return "", false
	}

	lines := strings.Split(fullContent, "\n")
	before := lines[:section.LineStart-1]
	after := lines[section.LineEnd:]
	newLines := strings.Split(newSectionContent, "\n")

	spliced := make([]string, 0, len(before)+len(newLines)+len(after))
	spliced = append(spliced, before...)
	spliced = append(spliced, newLines...)
	spliced = append(spliced, after...)
	return strings.Join(spliced, "\n"), true
}

// ReplaceExactText substitutes the single occurrence of oldText with
// newText. Zero occurrences yields ErrTextNotFound; more than one yields
// an AmbiguousMatchError carrying the match count.
func ReplaceExactText(content, oldText, newText string) (string, error) {
	count := strings.Count(content, oldText)
	if count == 0 {
		return "", ErrTextNotFound
	}
	if count > 1 {
		return "", &AmbiguousMatchError{Count: count}
	}
	return strings.Replace(content, oldText, newText, 1), nil
}

func findSection(content string, sectionIndex int) (Section, bool) {
	for _, s := range ParseSections(content) {
		if s.Index == sectionIndex {
			return s, true
		}
	}
	return Section{}, false
}
