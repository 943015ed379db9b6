package embedding

import (
	"context"
	"math/rand/v2"

	"github.com/hyperjump/synapse/pkg/utils"
)

// MockEmbedder derives vectors from a hash of the text, so equal texts always embed equally
// and nothing leaves the process. Used by tests and offline setups.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a mock producing vectors of the given size (DefaultDimensions if <= 0).
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a unit-length vector seeded by the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := uint64(HashString(text))
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	vec := make([]float32, e.dimensions)
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

func (e *MockEmbedder) Dimensions() int   { return e.dimensions }
func (e *MockEmbedder) ModelName() string { return "mock" }
func (e *MockEmbedder) Close() error      { return nil }
