// Package keyword is the full-text side index over vault documents. It is derived from
// the documents themselves and can always be rebuilt.
package keyword

import "context"

// Document is what gets indexed for one vault document.
type Document struct {
	Title   string   `json:"title"`
	Path    string   `json:"path"`
	Tags    []string `json:"tags"`
	Content string   `json:"content"`
}

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score contribution from matches in the title field.
	// Values > 1 make title matches rank higher (e.g. 3.0). Use 1.0 for no boost.
	TitleBoost float64
	// PhraseBoost multiplies the score when query terms appear as a phrase.
	PhraseBoost float64
	// FuzzyEnabled matches terms within Fuzziness edits (1 or 2, default 2).
	FuzzyEnabled bool
	Fuzziness    int
}

// KeywordIndex defines keyword search operations.
type KeywordIndex interface {
	Index(ctx context.Context, id string, doc *Document) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, id string) error
	// DocCount returns the total number of documents in the index.
	DocCount() (uint64, error)
	// Reset drops every document.
	Reset(ctx context.Context) error
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}

// TermDictionary exposes indexed terms and their document frequencies.
type TermDictionary interface {
	Terms() (map[string]int, error)
}
