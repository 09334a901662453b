package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/answerd/internal/logging"
)

func newTestClient(t *testing.T, url string) *OpenAIClient {
	t.Helper()
	client, err := NewOpenAIClient(Config{
		BaseURL: url,
		APIKey:  "test-key",
		Model:   "default-model",
		Timeout: 2 * time.Second,
	}, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	return client
}

func completionBody(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func TestNewOpenAIClient_Validation(t *testing.T) {
	logger := logging.NewTestLogger().Logger

	_, err := NewOpenAIClient(Config{Model: "m"}, logger)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewOpenAIClient(Config{BaseURL: "http://localhost"}, logger)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewOpenAIClient(Config{BaseURL: "http://localhost", Model: "m"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChatJSON(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(completionBody(`{"text": "the answer"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.ChatJSON(context.Background(), "what is it", "")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "the answer", result["text"])

	assert.Equal(t, "default-model", captured.Model)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
	assert.Equal(t, "what is it", captured.Messages[0].Content)
}

func TestChatJSON_ModelOverride(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(completionBody(`{"text": "ok"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.ChatJSON(context.Background(), "q", "other-model")
	require.NoError(t, err)
	assert.Equal(t, "other-model", captured.Model)
}

func TestChatJSON_NonJSONContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionBody("plain text, not json"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.ChatJSON(context.Background(), "q", "")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestChatJSON_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error": {"message": "bad request"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.ChatJSON(context.Background(), "q", "")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatJSON_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(completionBody(`{"text": "recovered"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.ChatJSON(context.Background(), "q", "")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "recovered", result["text"])
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatJSON_TransportFailure(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	client.maxRetries = 0

	result, err := client.ChatJSON(context.Background(), "q", "")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestChatJSON_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, "http://127.0.0.1:1")
	_, err := client.ChatJSON(ctx, "q", "")
	assert.Error(t, err)
}
