package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// Ensure BleveIndex implements KeywordIndex
var _ KeywordIndex = (*BleveIndex)(nil)

var textFields = []string{"title", "path", "tags", "content"}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	path string

	mu    sync.RWMutex
	index bleve.Index
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer lowercases and tokenizes without stemming so that "bayes"
	// matches "Bayes" but not "bay".
	textFieldMapping.Analyzer = standard.Name
	for _, f := range textFields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}
	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path (an OS path).
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	index, err := openOrCreate(path)
	if err != nil {
		return nil, err
	}
	return &BleveIndex{path: path, index: index}, nil
}

func openOrCreate(path string) (bleve.Index, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return index, nil
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return index, nil
}

// Index indexes a document by id, replacing any previous version.
func (b *BleveIndex) Index(ctx context.Context, id string, doc *Document) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.Index(id, doc)
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.Delete(id)
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.DocCount()
}

// Reset closes the index, deletes it from disk and creates an empty one in its place.
func (b *BleveIndex) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.index.Close(); err != nil {
		return fmt.Errorf("failed to close Bleve index: %w", err)
	}
	if err := os.RemoveAll(b.path); err != nil {
		return fmt.Errorf("failed to remove Bleve index: %w", err)
	}
	index, err := bleve.New(b.path, newMapping())
	if err != nil {
		return fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.index = index
	return nil
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}

// Search runs a match query and returns up to limit results.
// When opts is nil or both boosts are <= 1, a single match over all fields is used.
// Otherwise title and content are queried separately and merged with additive scoring,
// a term coverage penalty and a phrase boost.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return []*KeywordResult{}, nil
	}
	titleBoost, phraseBoost := 1.0, 1.0
	fuzzy, fuzziness := false, 2
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		fuzzy = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if titleBoost <= 1.0 && phraseBoost <= 1.0 {
		return b.searchSingle(query, limit, fuzzy, fuzziness)
	}
	return b.searchWithBoosts(query, limit, titleBoost, phraseBoost, fuzzy, fuzziness)
}

func (b *BleveIndex) run(q blevequery.Query, size int) ([]*KeywordResult, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

func (b *BleveIndex) searchSingle(query string, limit int, fuzzy bool, fuzziness int) ([]*KeywordResult, error) {
	return b.run(buildQuery(query, fuzzy, fuzziness, ""), limit)
}

func (b *BleveIndex) searchWithBoosts(query string, limit int, titleBoost, phraseBoost float64, fuzzy bool, fuzziness int) ([]*KeywordResult, error) {
	// Request enough from each so merged top "limit" is correct (same doc can appear in both).
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}
	terms := tokenizeQuery(query)

	titleHits, err := b.run(buildQuery(query, fuzzy, fuzziness, "title"), reqSize)
	if err != nil {
		return nil, err
	}
	contentHits, err := b.run(buildQuery(query, fuzzy, fuzziness, "content"), reqSize)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64)
	for _, h := range titleHits {
		scores[h.ID] += h.Score * titleBoost
	}
	for _, h := range contentHits {
		scores[h.ID] += h.Score
	}

	if len(terms) > 1 {
		// Squared coverage: a document matching 1 of 2 terms keeps a quarter of its score.
		coverage := b.termCoverage(terms, reqSize, fuzzy, fuzziness)
		for id := range scores {
			matched := coverage[id]
			if matched == 0 {
				matched = 1
			}
			c := float64(matched) / float64(len(terms))
			scores[id] *= c * c
		}
		if phraseBoost > 1.0 {
			for id := range b.phraseMatches(query, reqSize) {
				if _, ok := scores[id]; ok {
					scores[id] *= phraseBoost
				}
			}
		}
	}

	out := make([]*KeywordResult, 0, len(scores))
	for id, score := range scores {
		out = append(out, &KeywordResult{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildQuery returns a match query, or a disjunction of fuzzy term queries when fuzzy
// is set. An empty field searches all fields.
func buildQuery(query string, fuzzy bool, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(query)
	if !fuzzy || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// termCoverage counts how many of terms each document matches.
func (b *BleveIndex) termCoverage(terms []string, reqSize int, fuzzy bool, fuzziness int) map[string]int {
	coverage := make(map[string]int)
	for _, term := range terms {
		hits, err := b.run(buildQuery(term, fuzzy, fuzziness, ""), reqSize)
		if err != nil {
			continue
		}
		for _, h := range hits {
			coverage[h.ID]++
		}
	}
	return coverage
}

// phraseMatches returns the documents whose title or content contains query as a phrase.
func (b *BleveIndex) phraseMatches(query string, reqSize int) map[string]bool {
	matches := make(map[string]bool)
	for _, field := range []string{"content", "title"} {
		pq := bleve.NewMatchPhraseQuery(query)
		pq.SetField(field)
		hits, err := b.run(pq, reqSize)
		if err != nil {
			continue
		}
		for _, h := range hits {
			matches[h.ID] = true
		}
	}
	return matches
}

// Terms returns every indexed title and content term with its document frequency.
func (b *BleveIndex) Terms() (map[string]int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	terms := make(map[string]int)
	for _, field := range []string{"title", "content"} {
		dict, err := b.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s terms: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if int(entry.Count) > terms[entry.Term] {
				terms[entry.Term] = int(entry.Count)
			}
		}
		_ = dict.Close()
	}
	return terms, nil
}
