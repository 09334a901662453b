// Package llm provides an OpenAI-compatible chat completion client
// operating in JSON mode: every completion is requested and parsed as a
// single JSON object.
package llm

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
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/answerd/internal/logging"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// ErrInvalidConfig indicates invalid LLM client configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Client generates JSON-mode chat completions. ChatJSON returns (nil, nil)
// on any API failure after logging; callers must treat a nil result as a
// first-class outcome.
type Client interface {
	ChatJSON(ctx context.Context, prompt string, modelOverride string) (map[string]any, error)
}

// Config holds chat completion client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.together.xyz/v1".
	BaseURL string

	// APIKey is the bearer token.
	APIKey string

	// Model is the default model identifier.
	Model string

	// Timeout bounds one completion call. Defaults to 60s.
	Timeout time.Duration
}

// OpenAIClient talks to an OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *logging.Logger
}

// NewOpenAIClient creates a JSON-mode chat completion client.
func NewOpenAIClient(cfg Config, logger *logging.Logger) (*OpenAIClient, error) {
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

	return &OpenAIClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
		logger:     logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ChatJSON sends prompt as a single user message with JSON response format
// and parses the completion into a map. modelOverride selects the model for
// this request; empty means the configured default.
func (c *OpenAIClient) ChatJSON(ctx context.Context, prompt string, modelOverride string) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	model := modelOverride
	if model == "" {
		model = c.config.Model
	}

	req := chatRequest{
		Model:          model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		content, err := c.doRequest(ctx, req)
		if err == nil {
			return c.parseContent(ctx, content), nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	c.logger.Warn(ctx, "chat completion failed",
		zap.String("model", model),
		zap.Error(lastErr),
	)
	return nil, nil
}

// doRequest performs one HTTP request to the chat completions API.
func (c *OpenAIClient) doRequest(ctx context.Context, req chatRequest) (string, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp apiError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from API")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// parseContent decodes a JSON-mode completion body. A malformed body is a
// degraded outcome, not an error.
func (c *OpenAIClient) parseContent(ctx context.Context, content string) map[string]any {
	if content == "" {
		c.logger.Warn(ctx, "received empty completion content")
		return nil
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		c.logger.Warn(ctx, "failed to parse completion as JSON",
			zap.Error(err),
		)
		return nil
	}
	return result
}

// retryableError wraps an error to indicate it can be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

var _ Client = (*OpenAIClient)(nil)
