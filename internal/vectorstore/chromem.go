package vectorstore

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/logging"
)

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory only.
	Path string

	// Collection is the target collection name.
	Collection string
}

// ChromemStore implements Store with an embedded chromem-go database. It
// has no lexical index, so HybridSearch serves the dense ranking alone —
// the same degraded mode the Qdrant store falls back to when its sparse
// side is unavailable. Intended for development and tests.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     *ChromemConfig
	embedder   Embedder
	logger     *logging.Logger
}

// NewChromemStore creates an embedded store, persisting to cfg.Path when
// set.
func NewChromemStore(cfg *ChromemConfig, embedder Embedder, logger *logging.Logger) (*ChromemStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
	} else {
		db = chromem.NewDB()
	}

	s := &ChromemStore{
		db:       db,
		config:   cfg,
		embedder: embedder,
		logger:   logger,
	}

	if err := s.EnsureCollection(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// EnsureCollection creates the collection if it does not exist.
func (s *ChromemStore) EnsureCollection(ctx context.Context) error {
	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBootstrapFailed, err)
	}
	s.collection = collection
	s.logger.Info(ctx, "chromem collection ready", zap.String("collection", s.config.Collection))
	return nil
}

// embeddingFunc adapts the Embedder for chromem, used only when a document
// is added without a precomputed embedding.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// AddDocuments upserts chunks with their precomputed dense embeddings.
// Sparse vectors are ignored: chromem has no lexical index.
func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document, dense [][]float32, _ []SparseVector) error {
	if len(docs) == 0 {
		return fmt.Errorf("%w", ErrEmptyDocuments)
	}
	if len(dense) != len(docs) {
		return fmt.Errorf("%w: %d documents but %d dense embeddings", ErrInvalidConfig, len(docs), len(dense))
	}

	chromemDocs := make([]chromem.Document, 0, len(docs))
	for i, doc := range docs {
		if doc.Text == "" {
			continue
		}

		metadata := make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			metadata[k] = fmt.Sprint(v)
		}

		chromemDocs = append(chromemDocs, chromem.Document{
			ID:        PointID(doc),
			Content:   doc.Text,
			Metadata:  metadata,
			Embedding: dense[i],
		})
	}

	if len(chromemDocs) == 0 {
		s.logger.Warn(ctx, "no points to upsert")
		return nil
	}

	if err := s.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

// HybridSearch returns the dense ranking: with no lexical index the fusion
// stage has a single input list and is skipped by the fallback contract.
func (s *ChromemStore) HybridSearch(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", ErrInvalidConfig)
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// chromem rejects nResults greater than the collection size.
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	hits, err := s.collection.QueryEmbedding(ctx, queryVec, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Content == "" {
			continue
		}
		metadata := make(map[string]any, len(hit.Metadata))
		for k, v := range hit.Metadata {
			metadata[k] = v
		}
		results = append(results, SearchResult{
			Text:     hit.Content,
			Metadata: metadata,
			Score:    float64(hit.Similarity),
		})
	}
	return results, nil
}

// Close releases resources. The embedded database needs no teardown.
func (s *ChromemStore) Close() error {
	return nil
}
