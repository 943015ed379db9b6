package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/synapse/internal/chunker"
	"github.com/hyperjump/synapse/pkg/utils"
)

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	// Provider names the provider in cache keys ("http", "onnx", "mock").
	Provider       string
	Dimensions     int
	ChunkSize      int
	QueryCacheSize int
}

// Generator computes chunk embeddings, reusing cached vectors for chunks whose content
// hash has not changed since the previous pass.
type Generator struct {
	embedder   Embedder
	cache      Cache
	queries    *QueryCache
	provider   string
	dimensions int
	chunkSize  int
	logger     *zap.Logger
}

// Result is the outcome of one incremental pass over a document.
type Result struct {
	Chunks     []chunker.Chunk
	Embeddings map[int][]float32
	Hashes     map[int]string
	// Reused and Computed count cache hits and provider calls.
	Reused   int
	Computed int
}

// NewGenerator returns a generator. cache and logger may be nil.
func NewGenerator(embedder Embedder, cache Cache, cfg GeneratorConfig, logger *zap.Logger) (*Generator, error) {
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("invalid generator config: %w", chunker.ErrInvalidChunkSize)
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = embedder.Dimensions()
	}
	if dims <= 0 {
		dims = DefaultDimensions
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "default"
	}
	return &Generator{
		embedder:   embedder,
		cache:      cache,
		queries:    NewQueryCache(cfg.QueryCacheSize),
		provider:   provider,
		dimensions: dims,
		chunkSize:  cfg.ChunkSize,
		logger:     utils.OrNop(logger),
	}, nil
}

// ChunkSize returns the configured chunk size.
func (g *Generator) ChunkSize() int { return g.chunkSize }

// Dimensions returns the vector size of zero-vector fallbacks.
func (g *Generator) Dimensions() int { return g.dimensions }

// Provider returns the provider name used in cache keys.
func (g *Generator) Provider() string { return g.provider }

// Model returns the provider's model name.
func (g *Generator) Model() string { return g.embedder.ModelName() }

// Cache returns the persistent cache, or nil.
func (g *Generator) Cache() Cache { return g.cache }

// ZeroVector returns a zero-filled vector of the configured dimension.
func (g *Generator) ZeroVector() []float32 {
	return make([]float32, g.dimensions)
}

// EmbedChunk returns the provider embedding of text. Provider failures never propagate:
// they are logged and a zero vector is returned instead.
func (g *Generator) EmbedChunk(ctx context.Context, text string) []float32 {
	vec, err := g.embedder.Embed(ctx, text)
	if err != nil {
		g.logger.Warn("embedding failed, using zero vector", zap.Error(err))
		return g.ZeroVector()
	}
	if len(vec) == 0 {
		g.logger.Warn("provider returned an empty embedding, using zero vector")
		return g.ZeroVector()
	}
	return vec
}

func (g *Generator) key(documentID string, index int) CacheKey {
	return CacheKey{
		DocumentID: documentID,
		ChunkIndex: index,
		Provider:   g.provider,
		Model:      g.embedder.ModelName(),
	}
}

// IncrementalEmbed chunks text and returns an embedding and hash for every chunk. A chunk
// whose hash equals prevHashes[i] and whose vector is cached is reused; all others are
// embedded and written to the cache. The cache is flushed once at the end of the pass.
//
// Chunks are fixed offsets, so an edit near the start of a document shifts every later
// boundary and forces those chunks to be recomputed.
func (g *Generator) IncrementalEmbed(ctx context.Context, documentID, text string, prevHashes map[int]string) (*Result, error) {
	chunks := chunker.Chunks(text, g.chunkSize)
	res := &Result{
		Chunks:     chunks,
		Embeddings: make(map[int][]float32, len(chunks)),
		Hashes:     make(map[int]string, len(chunks)),
	}
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hash := chunker.Hash(c.Text)
		res.Hashes[c.Index] = hash
		key := g.key(documentID, c.Index)

		if prev, ok := prevHashes[c.Index]; ok && prev == hash && g.cache != nil {
			if vec, ok := g.cache.Get(ctx, key); ok && len(vec) > 0 {
				res.Embeddings[c.Index] = vec
				res.Reused++
				continue
			}
		}

		vec := g.EmbedChunk(ctx, c.Text)
		res.Embeddings[c.Index] = vec
		res.Computed++
		if g.cache == nil {
			continue
		}
		// A zero vector means the provider failed. Drop whatever the key held, since it
		// belongs to the chunk's previous text, so the next pass embeds it again.
		if utils.IsZero(vec) {
			g.cache.Delete(ctx, key)
		} else {
			g.cache.Set(ctx, key, vec)
		}
	}

	if g.cache != nil {
		if err := g.cache.Flush(ctx); err != nil {
			g.logger.Warn("failed to flush embedding cache", zap.Error(err))
		}
	}
	g.logger.Debug("incremental embedding done",
		zap.String("doc_id", documentID),
		zap.Int("chunks", len(chunks)),
		zap.Int("reused", res.Reused),
		zap.Int("computed", res.Computed))
	return res, nil
}

// ForgetDocument drops the document's cached vectors.
func (g *Generator) ForgetDocument(ctx context.Context, documentID string) {
	if g.cache == nil {
		return
	}
	g.cache.DeleteDocument(ctx, documentID)
	if err := g.cache.Flush(ctx); err != nil {
		g.logger.Warn("failed to flush embedding cache", zap.Error(err))
	}
}

// QueryCacheStats reports hits and misses of the query embedding cache.
func (g *Generator) QueryCacheStats() (hits, misses uint64) { return g.queries.Stats() }

// EmbedQuery embeds a search query. Successful results are kept in an in-memory LRU.
func (g *Generator) EmbedQuery(ctx context.Context, text string) []float32 {
	if vec, ok := g.queries.Get(text); ok {
		return vec
	}
	vec := g.EmbedChunk(ctx, text)
	if !utils.IsZero(vec) {
		g.queries.Set(text, vec)
	}
	return vec
}
