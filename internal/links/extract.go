// Package links finds hyperlinks in chat text and rewrites them with
// shortened replacements.
package links

import (
	"regexp"
)

// Candidates start with an http(s) scheme or "www." and run until whitespace,
// an angle bracket or a double quote. Whitespace is the unicode.IsSpace set
// plus the information separators \x1c-\x1f; RE2's \s alone is ASCII only
// and leaves out \v.
const (
	urlStop    = `\s\v\x1c-\x1f\x85\p{Z}<>"`
	urlPattern = `https?://[^` + urlStop + `]+|www\.[^` + urlStop + `]+`
)

var defaultExtractor = NewExtractor()

type Extractor struct {
	re *regexp.Regexp
}

func NewExtractor() *Extractor {
	return &Extractor{re: regexp.MustCompile(urlPattern)}
}

// Extract returns the distinct URL candidates in text, in order of first
// appearance. Malformed URLs are returned as long as they match the pattern.
func Extract(text string) []string {
	return defaultExtractor.Extract(text)
}

func (e *Extractor) Extract(text string) []string {
	return uniqueMatches(text, e.Spans(text))
}

// Spans returns the [start, end) byte offsets of every match in text,
// duplicates included.
func (e *Extractor) Spans(text string) [][]int {
	return e.re.FindAllStringIndex(text, -1)
}
