// Package vectorstore persists document chunks with their embeddings and
// serves hybrid (dense + lexical) retrieval with rank fusion.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the store backend could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrBootstrapFailed indicates collection creation failed at startup.
	ErrBootstrapFailed = errors.New("failed to ensure collection exists")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")
)

// Document represents a chunk to be stored in the vector store.
type Document struct {
	// Text is the chunk content.
	Text string

	// Metadata contains additional key-value pairs, including "source".
	Metadata map[string]any
}

// SearchResult is one retrieval hit. Score is backend-defined: cosine
// similarity for dense-only search, a rank-fusion score for hybrid search.
// Scores are not comparable across backends.
type SearchResult struct {
	Text     string
	Metadata map[string]any
	Score    float64
}

// SparseVector is a lexical term-weight vector for the sparse index.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// IsZero reports whether the vector has no terms.
func (v SparseVector) IsZero() bool {
	return len(v.Indices) == 0
}

// Embedder generates dense vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SparseEncoder produces lexical sparse vectors from text. Implementations
// that cannot provide sparse representations return zero vectors, which the
// store treats as "lexical search unavailable".
type SparseEncoder interface {
	EncodeDocuments(texts []string) []SparseVector
	EncodeQuery(text string) SparseVector
}

// Store is the interface for vector storage and hybrid retrieval.
type Store interface {
	// EnsureCollection creates the target collection if it does not exist.
	// Idempotent and safe to call on every process start.
	EnsureCollection(ctx context.Context) error

	// AddDocuments upserts chunks in batches. Point identity is the
	// deterministic id derived from (metadata, text), so re-ingesting
	// byte-identical content overwrites rather than duplicates.
	AddDocuments(ctx context.Context, docs []Document, dense [][]float32, sparse []SparseVector) error

	// HybridSearch embeds the query densely and lexically, runs both
	// searches, fuses rankings via Reciprocal Rank Fusion, and returns the
	// global top-k. When the lexical side is unavailable it falls back to
	// the dense ranking alone instead of failing.
	HybridSearch(ctx context.Context, query string, topK int) ([]SearchResult, error)

	// Close releases backend resources.
	Close() error
}
