package vectorstore

import (
	"context"
	"hash/fnv"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/answerd/internal/logging"
)

// hashEmbedder produces deterministic unit vectors from text so similarity
// search is exact for identical text without a real model.
type hashEmbedder struct{ dim int }

func (e *hashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)
	h := fnv.New32a()
	for _, tok := range []byte(text) {
		_, _ = h.Write([]byte{tok})
		vec[int(h.Sum32())%e.dim] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (e *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func newTestChromemStore(t *testing.T) (*ChromemStore, *hashEmbedder) {
	t.Helper()
	embedder := &hashEmbedder{dim: 16}
	store, err := NewChromemStore(&ChromemConfig{Collection: "test"}, embedder, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	return store, embedder
}

func TestChromemStoreAddAndSearch(t *testing.T) {
	store, embedder := newTestChromemStore(t)
	ctx := context.Background()

	docs := []Document{
		{Text: "SUTD has four pillars.", Metadata: map[string]any{"source": "docA"}},
		{Text: "ASD covers architecture.", Metadata: map[string]any{"source": "docB"}},
	}
	dense, err := embedder.EmbedDocuments(ctx, []string{docs[0].Text, docs[1].Text})
	require.NoError(t, err)

	require.NoError(t, store.AddDocuments(ctx, docs, dense, nil))

	results, err := store.HybridSearch(ctx, "SUTD has four pillars.", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "SUTD has four pillars.", results[0].Text)
	assert.Equal(t, "docA", results[0].Metadata["source"])
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestChromemStoreUpsertIdempotence(t *testing.T) {
	store, embedder := newTestChromemStore(t)
	ctx := context.Background()

	docs := []Document{{Text: "same content", Metadata: map[string]any{"source": "s"}}}
	dense, err := embedder.EmbedDocuments(ctx, []string{docs[0].Text})
	require.NoError(t, err)

	require.NoError(t, store.AddDocuments(ctx, docs, dense, nil))
	require.NoError(t, store.AddDocuments(ctx, docs, dense, nil))

	// Re-ingesting byte-identical (metadata, text) must upsert, not
	// duplicate.
	results, err := store.HybridSearch(ctx, "same content", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChromemStoreEmptySearch(t *testing.T) {
	store, _ := newTestChromemStore(t)

	results, err := store.HybridSearch(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStoreRejectsEmptyBatch(t *testing.T) {
	store, _ := newTestChromemStore(t)
	err := store.AddDocuments(context.Background(), nil, nil, nil)
	require.ErrorIs(t, err, ErrEmptyDocuments)
}

func TestChromemStoreSkipsEmptyTextDocuments(t *testing.T) {
	store, embedder := newTestChromemStore(t)
	ctx := context.Background()

	docs := []Document{
		{Text: "", Metadata: map[string]any{"source": "empty"}},
		{Text: "real content", Metadata: map[string]any{"source": "s"}},
	}
	dense, err := embedder.EmbedDocuments(ctx, []string{"", "real content"})
	require.NoError(t, err)

	require.NoError(t, store.AddDocuments(ctx, docs, dense, nil))

	results, err := store.HybridSearch(ctx, "real content", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "real content", results[0].Text)
}
