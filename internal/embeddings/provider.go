// Package embeddings provides dense embedding generation via multiple
// providers, plus the lexical sparse encoder for hybrid retrieval.
package embeddings

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/answerd/internal/config"
	"github.com/fyrsmithlabs/answerd/internal/logging"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for dense embedding providers.
type Provider interface {
	vectorstore.Embedder

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// NewProvider creates an embedding provider from configuration.
//
// Providers:
//   - "openai": any OpenAI-compatible embeddings API
//   - "fastembed": local ONNX models, no network or credentials
func NewProvider(cfg config.EmbeddingsConfig, logger *logging.Logger) (Provider, error) {
	switch cfg.Provider {
	case config.EmbeddingsOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey.Value(),
			Model:      cfg.Model,
			Dimension:  cfg.Dimension,
			MaxRetries: cfg.MaxRetries,
		}, logger)
	case config.EmbeddingsFastEmbed:
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// ZeroVector returns an all-zero placeholder of the given dimension.
// Downstream treats a zero-vector chunk as effectively unsearchable, not as
// a correctness bug.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}
