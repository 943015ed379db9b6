package search

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	snippetLength = 200
	contextLength = 50
)

// QueryTerms returns the lower-cased whitespace-separated terms of query that are longer
// than one character.
func QueryTerms(query string) []string {
	var terms []string
	for _, f := range strings.Fields(query) {
		if utf8.RuneCountInString(f) > 1 {
			terms = append(terms, lowerRunes(f))
		}
	}
	return terms
}

// Snippet returns a window of text around the first query term found in it, with every
// query term wrapped in **bold**. Without a match it returns the first 200 characters.
func Snippet(text, query string) string {
	terms := QueryTerms(query)
	runes := []rune(text)
	lower := []rune(lowerRunes(text))

	for _, term := range terms {
		idx := indexRunes(lower, []rune(term))
		if idx < 0 {
			continue
		}
		start := idx - contextLength
		if start < 0 {
			start = 0
		}
		end := idx + utf8.RuneCountInString(term) + contextLength
		if end > len(runes) {
			end = len(runes)
		}
		var b strings.Builder
		if start > 0 {
			b.WriteString("...")
		}
		b.WriteString(Highlight(string(runes[start:end]), terms))
		if end < len(runes) {
			b.WriteString("...")
		}
		return b.String()
	}

	if len(runes) > snippetLength {
		return string(runes[:snippetLength]) + "..."
	}
	return text
}

// Highlight wraps case-insensitive occurrences of each term in **bold**, one term after
// the other.
func Highlight(text string, terms []string) string {
	for _, term := range terms {
		if term == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)(` + regexp.QuoteMeta(term) + `)`)
		text = re.ReplaceAllString(text, "**${1}**")
	}
	return text
}

// lowerRunes lower-cases rune by rune so offsets stay aligned with the input.
func lowerRunes(s string) string {
	return strings.Map(unicode.ToLower, s)
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, r := range needle {
			if haystack[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// runeSlice returns text[start:end] in rune offsets, clamped to the text.
func runeSlice(text string, start, end int) string {
	runes := []rune(text)
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}
