package embedding

import "fmt"

// Pooling selects how token states are reduced to a single sentence vector.
type Pooling string

const (
	// PoolingCLS takes the first ([CLS]) token's state, or uses the output as-is when the
	// model already emits one vector per input.
	PoolingCLS Pooling = "cls"
	// PoolingMean averages the token states under the attention mask.
	PoolingMean Pooling = "mean"
)

// ONNXConfig configures the local ONNX Runtime provider.
type ONNXConfig struct {
	ModelPath  string
	Dimensions int
	MaxTokens  int
	Pooling    Pooling
	// OutputName is the graph output to read. Sentence-transformer exports usually name
	// it "last_hidden_state" (token states) or "sentence_embedding" (already pooled).
	OutputName string
	VocabSize  int
}

func (c ONNXConfig) withDefaults() ONNXConfig {
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 256
	}
	if c.Pooling == "" {
		c.Pooling = PoolingCLS
	}
	if c.OutputName == "" {
		c.OutputName = "output"
	}
	if c.VocabSize <= 0 {
		c.VocabSize = 30522
	}
	return c
}

// outputShape is the shape of the tensor the session writes into: one row per token for
// mean pooling, a single row otherwise.
func (c ONNXConfig) outputShape() []int64 {
	if c.Pooling == PoolingMean {
		return []int64{1, int64(c.MaxTokens), int64(c.Dimensions)}
	}
	return []int64{1, int64(c.Dimensions)}
}

// pool reduces raw session output to one vector of c.Dimensions values.
func (c ONNXConfig) pool(output []float32, attentionMask []int64) ([]float32, error) {
	switch c.Pooling {
	case PoolingMean:
		return meanPool(output, attentionMask, c.Dimensions)
	case PoolingCLS:
		if len(output) < c.Dimensions {
			return nil, fmt.Errorf("model output has %d values, want at least %d", len(output), c.Dimensions)
		}
		out := make([]float32, c.Dimensions)
		copy(out, output[:c.Dimensions])
		return out, nil
	default:
		return nil, fmt.Errorf("unknown pooling %q", c.Pooling)
	}
}

// meanPool averages the rows of states (tokens x dims, row-major) whose mask entry is set.
func meanPool(states []float32, mask []int64, dims int) ([]float32, error) {
	if dims <= 0 || len(states) < len(mask)*dims {
		return nil, fmt.Errorf("token states have %d values, want %d tokens x %d dims", len(states), len(mask), dims)
	}
	out := make([]float32, dims)
	var n float32
	for tok, m := range mask {
		if m == 0 {
			continue
		}
		row := states[tok*dims : (tok+1)*dims]
		for i, v := range row {
			out[i] += v
		}
		n++
	}
	if n == 0 {
		return out, nil
	}
	for i := range out {
		out[i] /= n
	}
	return out, nil
}
