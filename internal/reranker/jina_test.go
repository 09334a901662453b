package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/answerd/internal/logging"
)

func testDocs() []Document {
	return []Document{
		{Text: "first passage"},
		{Text: "second passage"},
		{Text: "third passage"},
	}
}

func newTestClient(t *testing.T, url string) *JinaClient {
	t.Helper()
	client, err := NewJinaClient(JinaConfig{
		BaseURL: url,
		APIKey:  "test-key",
		Model:   "test-reranker",
		Timeout: 2 * time.Second,
	}, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	return client
}

func TestNewJinaClient_Validation(t *testing.T) {
	logger := logging.NewTestLogger().Logger

	_, err := NewJinaClient(JinaConfig{Model: "m"}, logger)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewJinaClient(JinaConfig{BaseURL: "http://localhost"}, logger)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewJinaClient(JinaConfig{BaseURL: "http://localhost", Model: "m"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestJinaClient_Rerank(t *testing.T) {
	var captured rerankRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(Result{Results: []RankedIndex{
			{Index: 2, Score: 0.95},
			{Index: 0, Score: 0.41},
		}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.Rerank(context.Background(), "which passage", testDocs(), 2)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "test-reranker", captured.Model)
	assert.Equal(t, "which passage", captured.Query)
	assert.Equal(t, 2, captured.TopN)
	assert.Equal(t, []string{"first passage", "second passage", "third passage"}, captured.Documents)
	assert.False(t, captured.ReturnDocuments)

	require.Len(t, result.Results, 2)
	assert.Equal(t, 2, result.Results[0].Index)
	assert.InDelta(t, 0.95, result.Results[0].Score, 1e-9)
}

func TestJinaClient_Rerank_EmptyDocs(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	result, err := client.Rerank(context.Background(), "q", nil, 5)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Empty(t, result.Results)
}

func TestJinaClient_Rerank_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.Rerank(context.Background(), "q", testDocs(), 2)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestJinaClient_Rerank_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.Rerank(context.Background(), "q", testDocs(), 2)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestJinaClient_Rerank_TransportFailure(t *testing.T) {
	// Nothing listening on this port.
	client := newTestClient(t, "http://127.0.0.1:1")
	result, err := client.Rerank(context.Background(), "q", testDocs(), 2)
	assert.NoError(t, err)
	assert.Nil(t, result)
}
