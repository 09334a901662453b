// Package ingest turns raw source documents into indexed chunks: split,
// embed densely and lexically, and upsert into the vector store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/chunker"
	"github.com/fyrsmithlabs/answerd/internal/embeddings"
	"github.com/fyrsmithlabs/answerd/internal/logging"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

// embedBatchSize bounds one dense embedding API call.
const embedBatchSize = 32

// ErrInvalidConfig indicates invalid ingest service configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds chunking parameters for ingestion.
type Config struct {
	ChunkSize int
	Overlap   int
}

// Result reports what one ingestion run accomplished. Warnings carry
// per-item degradations (skipped documents, embedding fallbacks) that did
// not abort the run.
type Result struct {
	Documents int      `json:"documents"`
	Chunks    int      `json:"chunks"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Service ingests documents into the vector store.
type Service struct {
	config   Config
	store    vectorstore.Store
	embedder embeddings.Provider
	sparse   vectorstore.SparseEncoder
	logger   *logging.Logger
}

// NewService creates an ingestion service.
func NewService(cfg Config, store vectorstore.Store, embedder embeddings.Provider, sparse vectorstore.SparseEncoder, logger *logging.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if sparse == nil {
		return nil, fmt.Errorf("%w: sparse encoder is required", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, chunk size)", ErrInvalidConfig)
	}

	return &Service{
		config:   cfg,
		store:    store,
		embedder: embedder,
		sparse:   sparse,
		logger:   logger,
	}, nil
}

// IngestDocuments chunks, embeds and upserts docs. Documents with empty
// text are skipped with a warning; an all-empty set is a zero-count result,
// not an error. A failed embedding batch degrades those chunks to zero
// vectors instead of aborting the run.
func (s *Service) IngestDocuments(ctx context.Context, docs []chunker.SourceDocument) (Result, error) {
	var result Result

	kept := make([]chunker.SourceDocument, 0, len(docs))
	for i, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("document %d (%s): empty text, skipped", i, doc.Source))
			continue
		}
		kept = append(kept, doc)
	}
	if len(kept) == 0 {
		result.Warnings = append(result.Warnings, "no non-empty documents to ingest")
		s.logger.Warn(ctx, "ingestion called with no non-empty documents")
		return result, nil
	}

	chunks, err := chunker.Split(kept, s.config.ChunkSize, s.config.Overlap)
	if err != nil {
		return result, fmt.Errorf("chunking failed: %w", err)
	}
	if len(chunks) == 0 {
		result.Documents = len(kept)
		result.Warnings = append(result.Warnings, "documents produced no chunks")
		return result, nil
	}

	texts := make([]string, len(chunks))
	storeDocs := make([]vectorstore.Document, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
		storeDocs[i] = vectorstore.Document{Text: chunk.Text, Metadata: chunk.Metadata}
	}

	dense, embedWarnings := s.embedTexts(ctx, texts)
	result.Warnings = append(result.Warnings, embedWarnings...)
	sparse := s.sparse.EncodeDocuments(texts)

	if err := s.store.AddDocuments(ctx, storeDocs, dense, sparse); err != nil {
		return result, fmt.Errorf("upsert failed: %w", err)
	}

	result.Documents = len(kept)
	result.Chunks = len(chunks)
	s.logger.Info(ctx, "ingestion complete",
		zap.Int("documents", result.Documents),
		zap.Int("chunks", result.Chunks),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// embedTexts embeds texts in batches. A failed batch falls back to zero
// vectors for its chunks so the run can continue; those chunks remain
// findable lexically.
func (s *Service) embedTexts(ctx context.Context, texts []string) ([][]float32, []string) {
	dense := make([][]float32, 0, len(texts))
	var warnings []string

	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch := texts[start:end]

		vectors, err := s.embedder.EmbedDocuments(ctx, batch)
		if err != nil || len(vectors) != len(batch) {
			if err == nil {
				err = fmt.Errorf("expected %d vectors, got %d", len(batch), len(vectors))
			}
			s.logger.Warn(ctx, "embedding batch failed, using zero vectors",
				zap.Int("start", start),
				zap.Int("size", len(batch)),
				zap.Error(err),
			)
			warnings = append(warnings, fmt.Sprintf("chunks %d-%d: embedding failed, indexed with zero vectors", start, end-1))
			for range batch {
				dense = append(dense, embeddings.ZeroVector(s.embedder.Dimension()))
			}
			continue
		}
		dense = append(dense, vectors...)
	}
	return dense, warnings
}
