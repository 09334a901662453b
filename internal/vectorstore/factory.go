package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/answerd/internal/config"
	"github.com/fyrsmithlabs/answerd/internal/logging"
)

// NewStore creates a Store from configuration.
//
// The provider field selects the implementation:
//   - "qdrant": external Qdrant server with hybrid dense+lexical search
//   - "chromem": embedded dense-only store for development and tests
func NewStore(cfg *config.Config, embedder Embedder, sparse SparseEncoder, logger *logging.Logger) (Store, error) {
	switch cfg.Store.Provider {
	case config.ProviderQdrant:
		return NewQdrantStore(&QdrantConfig{
			Host:               cfg.Store.Qdrant.Host,
			Port:               cfg.Store.Qdrant.Port,
			UseTLS:             cfg.Store.Qdrant.UseTLS,
			APIKey:             cfg.Store.Qdrant.APIKey.Value(),
			Collection:         cfg.Store.Collection,
			Dimension:          cfg.Embeddings.Dimension,
			UpsertBatchSize:    cfg.Store.UpsertBatchSize,
			RequestTimeout:     cfg.Store.Qdrant.RequestTimeout.Duration(),
			RetryAttempts:      cfg.Store.Qdrant.RetryAttempts,
			PrefetchMultiplier: cfg.Retrieval.PrefetchMultiplier,
		}, embedder, sparse, logger)
	case config.ProviderChromem:
		return NewChromemStore(&ChromemConfig{
			Path:       cfg.Store.Chromem.Path,
			Collection: cfg.Store.Collection,
		}, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown store provider %q", ErrInvalidConfig, cfg.Store.Provider)
	}
}
