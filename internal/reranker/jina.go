package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/logging"
)

const defaultTimeout = 30 * time.Second

// ErrInvalidConfig indicates invalid reranker configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// JinaConfig holds configuration for the Jina-style rerank API client.
type JinaConfig struct {
	// BaseURL is the full rerank endpoint URL.
	BaseURL string

	// APIKey is the bearer token.
	APIKey string

	// Model is the reranker model identifier.
	Model string

	// Timeout bounds one rerank call. Defaults to 30s.
	Timeout time.Duration
}

// JinaClient calls a Jina-compatible rerank API. Only the top indices are
// requested back, not full documents, to save bandwidth.
type JinaClient struct {
	config     JinaConfig
	httpClient *http.Client
	logger     *logging.Logger
}

// NewJinaClient creates a rerank client.
func NewJinaClient(cfg JinaConfig, logger *logging.Logger) (*JinaClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &JinaClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// rerankRequest is the rerank API request body.
type rerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	TopN            int      `json:"top_n"`
	Documents       []string `json:"documents"`
	ReturnDocuments bool     `json:"return_documents"`
}

// Rerank scores docs against query and returns the top indices. Any
// failure degrades to (nil, nil) after logging: reranking is an optional
// quality stage, never a request blocker.
func (c *JinaClient) Rerank(ctx context.Context, query string, docs []Document, topK int) (*Result, error) {
	if len(docs) == 0 {
		return &Result{}, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}

	body, err := json.Marshal(rerankRequest{
		Model:           c.config.Model,
		Query:           query,
		TopN:            topK,
		Documents:       texts,
		ReturnDocuments: false,
	})
	if err != nil {
		c.logger.Error(ctx, "failed to encode rerank request", zap.Error(err))
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		c.logger.Error(ctx, "failed to build rerank request", zap.Error(err))
		return nil, nil
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "rerank call failed", zap.Error(err))
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn(ctx, "rerank API returned error status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return nil, nil
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.Warn(ctx, "failed to decode rerank response", zap.Error(err))
		return nil, nil
	}

	return &result, nil
}

var _ Reranker = (*JinaClient)(nil)
