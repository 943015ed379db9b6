package indexer

import (
	"regexp"
	"strings"
)

var (
	wikiLinkRe     = regexp.MustCompile(`\[\[([^\]|]+)(?:\|([^\]]+))?\]\]`)
	markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	titleSeparator = strings.NewReplacer("_", " ", "-", " ")
)

// keywordText prepares document text for the keyword index: link syntax is reduced to its
// visible words and whitespace runs collapse to one space. Chunking uses the raw text so
// offsets stay valid.
func keywordText(text string) string {
	text = wikiLinkRe.ReplaceAllString(text, "$1 $2")
	text = markdownLinkRe.ReplaceAllString(text, "$1")
	return strings.Join(strings.Fields(text), " ")
}

// keywordTitle splits file-name style titles such as "company_profile-2021" into words
// the standard analyzer can match.
func keywordTitle(title string) string {
	return titleSeparator.Replace(title)
}
