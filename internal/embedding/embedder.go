// Package embedding turns chunk text into vectors: provider adapters, a persistent
// per-chunk cache and the incremental generator that ties them together.
package embedding

import (
	"context"
	"errors"
)

// DefaultDimensions is the vector size used when none is configured.
const DefaultDimensions = 768

// ErrNoEmbedder is returned when a generator is built without a provider.
var ErrNoEmbedder = errors.New("no embedding provider configured")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// ModelName identifies the model; it is part of every cache key.
	ModelName() string
	Close() error
}

// embedEach implements EmbedBatch by calling embed for each text in turn.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
