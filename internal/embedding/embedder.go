// Package embedding maps text to fixed-dimension float32 vectors via OpenAI, ONNX Runtime or a deterministic mock.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbedding marks a failed embedding call. Callers must not index anything when it is returned.
var ErrEmbedding = errors.New("embedding failed")

// Embedder produces vector embeddings for text. EmbedBatch returns exactly one vector per input,
// in input order, or an error and no vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
