//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/synapse/pkg/utils"
)

var onnxInputNames = []string{"input_ids", "attention_mask", "token_type_ids"}

// ONNXEmbedder runs a BERT-style encoder through ONNX Runtime. It needs CGO and the
// onnxruntime shared library. The session is bound to fixed tensors, so Embed is serialized.
type ONNXEmbedder struct {
	cfg       ONNXConfig
	model     string
	tokenizer Tokenizer

	mu      sync.Mutex
	session *ort.AdvancedSession
	inputs  [3]*ort.Tensor[int64]
	output  *ort.Tensor[float32]
}

// NewONNXEmbedder loads the model at cfg.ModelPath, initializing the runtime on first use.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	cfg = cfg.withDefaults()
	if cfg.ModelPath == "" {
		return nil, errors.New("onnx model path is required")
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	e := &ONNXEmbedder{
		cfg:       cfg,
		model:     strings.TrimSuffix(filepath.Base(cfg.ModelPath), filepath.Ext(cfg.ModelPath)),
		tokenizer: &HashTokenizer{VocabSize: cfg.VocabSize},
	}
	if err := e.open(); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *ONNXEmbedder) open() error {
	seqShape := ort.NewShape(1, int64(e.cfg.MaxTokens))
	inputs := make([]ort.ArbitraryTensor, len(onnxInputNames))
	for i, name := range onnxInputNames {
		t, err := ort.NewEmptyTensor[int64](seqShape)
		if err != nil {
			return fmt.Errorf("create %s tensor: %w", name, err)
		}
		e.inputs[i] = t
		inputs[i] = t
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(e.cfg.outputShape()...))
	if err != nil {
		return fmt.Errorf("create %s tensor: %w", e.cfg.OutputName, err)
	}
	e.output = out

	session, err := ort.NewAdvancedSession(e.cfg.ModelPath, onnxInputNames, []string{e.cfg.OutputName},
		inputs, []ort.ArbitraryTensor{out}, nil)
	if err != nil {
		return fmt.Errorf("create onnx session for %s: %w", e.cfg.ModelPath, err)
	}
	e.session = session
	return nil
}

// Embed tokenizes text, runs the model, pools and L2-normalizes the result.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("onnx embedder is closed")
	}

	ids, mask, types := e.tokenizer.Tokenize(text, e.cfg.MaxTokens)
	copy(e.inputs[0].GetData(), ids)
	copy(e.inputs[1].GetData(), mask)
	copy(e.inputs[2].GetData(), types)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	vec, err := e.cfg.pool(e.output.GetData(), mask)
	if err != nil {
		return nil, err
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

func (e *ONNXEmbedder) Dimensions() int { return e.cfg.Dimensions }

// ModelName is the model file name without its extension.
func (e *ONNXEmbedder) ModelName() string { return e.model }

// Close releases the session and its tensors. It is safe to call more than once.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	if e.session != nil {
		errs = append(errs, e.session.Destroy())
		e.session = nil
	}
	for i, t := range e.inputs {
		if t != nil {
			errs = append(errs, t.Destroy())
			e.inputs[i] = nil
		}
	}
	if e.output != nil {
		errs = append(errs, e.output.Destroy())
		e.output = nil
	}
	return errors.Join(errs...)
}
