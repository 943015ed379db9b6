// Package search answers queries against the vector index and the keyword index and joins
// the hits with document metadata for display.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/synapse/internal/embedding"
	"github.com/hyperjump/synapse/internal/keyword"
	"github.com/hyperjump/synapse/internal/models"
	"github.com/hyperjump/synapse/internal/storage"
	"github.com/hyperjump/synapse/internal/vault"
	"github.com/hyperjump/synapse/internal/vector"
	"github.com/hyperjump/synapse/pkg/utils"
)

// Search modes reported in SearchResponse.Mode.
const (
	ModeSemantic = "semantic"
	ModeVector   = "vector"
	ModeKeyword  = "keyword"
)

// ResultType is the type of every result; all indexed documents are notes.
const ResultType = "note"

// Config holds the engine's limits.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	// Keyword configures keyword search; nil uses the index defaults.
	Keyword *keyword.SearchOptions
}

// Engine runs semantic and keyword search.
type Engine struct {
	source    vault.DocumentSource
	metadata  *storage.MetadataStore
	index     *vector.Index
	generator *embedding.Generator
	keyword   keyword.KeywordIndex
	suggester *keyword.Suggester
	cfg       Config
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithKeywordIndex enables keyword search. When the index exposes its term dictionary,
// keyword queries without results get a spelling suggestion.
func WithKeywordIndex(k keyword.KeywordIndex) Option {
	return func(e *Engine) {
		e.keyword = k
		if dict, ok := k.(keyword.TermDictionary); ok {
			e.suggester = keyword.NewSuggester(dict, 2)
		}
	}
}

// WithConfig sets limits and keyword options.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// NewEngine creates a search engine over the given stores.
func NewEngine(source vault.DocumentSource, metadata *storage.MetadataStore, index *vector.Index, generator *embedding.Generator, opts ...Option) *Engine {
	e := &Engine{
		source:    source,
		metadata:  metadata,
		index:     index,
		generator: generator,
		cfg:       Config{DefaultLimit: 10, MaxLimit: 100},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// Search validates query and dispatches it: keyword search when requested, vector search
// when a vector is given, semantic text search otherwise.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := query.Validate(e.cfg.DefaultLimit, e.cfg.MaxLimit); err != nil {
		return nil, err
	}

	resp := &models.SearchResponse{Query: query.Query}
	var (
		results []*models.SearchResult
		err     error
	)
	switch {
	case query.Keyword:
		resp.Mode = ModeKeyword
		results, err = e.KeywordSearch(ctx, query.Query, query.Limit)
		if err == nil && len(results) == 0 {
			resp.Suggestion = e.Suggest(query.Query)
		}
	case len(query.Vector) > 0:
		resp.Mode = ModeVector
		results, err = e.searchVector(ctx, query.Vector, query.Query, query.Limit)
	default:
		resp.Mode = ModeSemantic
		results, err = e.SearchText(ctx, query.Query, query.Limit)
	}
	if err != nil {
		return nil, err
	}

	resp.Results = results
	resp.Total = len(results)
	resp.QueryTime = time.Since(start).Milliseconds()
	return resp, nil
}

// SearchText embeds query and searches the vector index with it.
func (e *Engine) SearchText(ctx context.Context, query string, limit int) ([]*models.SearchResult, error) {
	if limit <= 0 {
		return []*models.SearchResult{}, nil
	}
	vec := e.generator.EmbedQuery(ctx, query)
	if utils.IsZero(vec) {
		e.logger.Warn("query embedding unavailable", zap.String("query", utils.Truncate(query, 80)))
		return []*models.SearchResult{}, nil
	}
	return e.searchVector(ctx, vec, query, limit)
}

// SearchVector returns the limit chunks closest to vec, highest score first. Snippets are
// the start of each chunk.
func (e *Engine) SearchVector(ctx context.Context, vec []float32, limit int) ([]*models.SearchResult, error) {
	return e.searchVector(ctx, vec, "", limit)
}

func (e *Engine) searchVector(ctx context.Context, vec []float32, query string, limit int) ([]*models.SearchResult, error) {
	hits, err := e.index.Search(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	contents := make(map[string]string)
	results := make([]*models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		meta, err := e.metadata.GetByID(ctx, hit.DocumentID)
		if err != nil || meta == nil {
			e.logger.Debug("skipping hit without metadata",
				zap.String("doc_id", hit.DocumentID), zap.Int("chunk", hit.ChunkIndex), zap.Error(err))
			continue
		}
		chunk, ok := meta.Chunk(hit.ChunkIndex)
		if !ok {
			chunk = models.ChunkDescriptor{
				Index: hit.ChunkIndex,
				Start: hit.ChunkIndex * meta.ChunkSize,
				End:   (hit.ChunkIndex + 1) * meta.ChunkSize,
			}
		}
		content, ok := contents[meta.Path]
		if !ok {
			content = e.readContent(ctx, meta.Path)
			contents[meta.Path] = content
		}
		results = append(results, &models.SearchResult{
			DocumentID: hit.DocumentID,
			Path:       meta.Path,
			Title:      meta.Title,
			Snippet:    Snippet(runeSlice(content, chunk.Start, chunk.End), query),
			Score:      hit.Score,
			ChunkIndex: hit.ChunkIndex,
			Type:       ResultType,
		})
	}
	return results, nil
}

// KeywordSearch runs query against the keyword index and returns one result per document.
func (e *Engine) KeywordSearch(ctx context.Context, query string, limit int) ([]*models.SearchResult, error) {
	if e.keyword == nil {
		return nil, fmt.Errorf("keyword search is not enabled")
	}
	hits, err := e.keyword.Search(ctx, query, limit, e.cfg.Keyword)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	results := make([]*models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		meta, err := e.metadata.GetByID(ctx, hit.ID)
		if err != nil || meta == nil {
			e.logger.Debug("skipping keyword hit without metadata", zap.String("doc_id", hit.ID), zap.Error(err))
			continue
		}
		results = append(results, &models.SearchResult{
			DocumentID: hit.ID,
			Path:       meta.Path,
			Title:      meta.Title,
			Snippet:    Snippet(e.readContent(ctx, meta.Path), query),
			Score:      hit.Score,
			Type:       ResultType,
		})
	}
	return results, nil
}

// Suggest returns a spelling correction for query, or "" when there is none.
func (e *Engine) Suggest(query string) string {
	if e.suggester == nil {
		return ""
	}
	corrected, changed, err := e.suggester.Correct(query)
	if err != nil {
		e.logger.Debug("spelling suggestion failed", zap.Error(err))
		return ""
	}
	if !changed {
		return ""
	}
	return corrected
}

func (e *Engine) readContent(ctx context.Context, docPath string) string {
	content, _, err := e.source.ReadDocument(ctx, docPath)
	if err != nil {
		e.logger.Warn("failed to read document for snippet", zap.String("path", docPath), zap.Error(err))
		return ""
	}
	return content
}
