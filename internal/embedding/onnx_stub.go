//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errONNXUnavailable = errors.New("onnx embedder needs a cgo build (CGO_ENABLED=1) with the onnxruntime library installed")

// ONNXEmbedder is unavailable in builds without cgo.
type ONNXEmbedder struct{}

// NewONNXEmbedder always fails without cgo.
func NewONNXEmbedder(ONNXConfig) (*ONNXEmbedder, error) { return nil, errONNXUnavailable }

func (*ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errONNXUnavailable
}

func (*ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errONNXUnavailable
}

func (*ONNXEmbedder) Dimensions() int   { return 0 }
func (*ONNXEmbedder) ModelName() string { return "" }
func (*ONNXEmbedder) Close() error      { return nil }
