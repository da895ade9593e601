package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

const (
	defaultLocalDimension = 384
	localModelName        = "local-hash-v1"
)

// LocalProvider computes deterministic pseudo-embeddings without a model
// service. Each text is feature-hashed bag-of-words style: every token is
// hashed to a dimension index and a sign, accumulated, then L2-normalized.
// Texts sharing vocabulary therefore produce genuinely similar vectors,
// which makes the provider usable offline and as a test double.
type LocalProvider struct {
	dim int
}

// NewLocalProvider creates a local deterministic provider.
// A non-positive dimension falls back to the default (384).
func NewLocalProvider(dim int) *LocalProvider {
	if dim <= 0 {
		dim = defaultLocalDimension
	}
	return &LocalProvider{dim: dim}
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *LocalProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = p.embed(text)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single text.
func (p *LocalProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.embed(text), nil
}

// Dimension returns the embedding dimension.
func (p *LocalProvider) Dimension() int { return p.dim }

// Model returns the model identifier.
func (p *LocalProvider) Model() string { return localModelName }

// Close is a no-op for the local provider.
func (p *LocalProvider) Close() error { return nil }

func (p *LocalProvider) embed(text string) []float32 {
	vec := make([]float32, p.dim)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		idx := int(sum % uint64(p.dim))
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		vec[idx] += sign
	}

	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if mag == 0 {
		// Empty or whitespace-only text maps to a stable unit vector.
		vec[0] = 1
		return vec
	}

	norm := float32(1 / math.Sqrt(mag))
	for i := range vec {
		vec[i] *= norm
	}
	return vec
}
