package embedding

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the underlying model call failed.
	// Callers must treat this as recoverable and fall back to
	// non-semantic matching.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrServiceClosed indicates the service has been closed.
	ErrServiceClosed = errors.New("embedding service closed")
)

// Provider is the pluggable embedding strategy behind the service.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Model returns the model identifier used for cache keying.
	Model() string

	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "local" or "openai".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string
	// APIKey authenticates against the remote API (optional for TEI).
	APIKey string
	// Dimension overrides the vector dimension for the local provider.
	Dimension int
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocalProvider(cfg.Dimension), nil
	case "openai":
		return NewLangChainProvider(LangChainConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
