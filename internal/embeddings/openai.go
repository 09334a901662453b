package embeddings

import (
	"context"
	"fmt"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/logging"
)

// OpenAIConfig holds configuration for the OpenAI-compatible provider.
type OpenAIConfig struct {
	// BaseURL is the base URL for the embeddings API.
	BaseURL string

	// APIKey is the API key for the backend.
	APIKey string

	// Model is the embedding model to use.
	Model string

	// Dimension is the dense vector dimensionality of the model.
	Dimension int

	// MaxRetries bounds retry attempts before giving up on a batch.
	MaxRetries int
}

// Validate validates the configuration.
func (c OpenAIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// OpenAIProvider generates embeddings through any OpenAI-compatible API
// using langchaingo's embeddings abstraction. Transient API failures are
// retried with exponential backoff before the error is surfaced.
type OpenAIProvider struct {
	embedder   *lcembeddings.EmbedderImpl
	config     OpenAIConfig
	logger     *logging.Logger
	maxRetries int
}

// NewOpenAIProvider creates a provider for the configured backend.
func NewOpenAIProvider(cfg OpenAIConfig, logger *logging.Logger) (*OpenAIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for keyless local backends.
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	return &OpenAIProvider{
		embedder:   embedder,
		config:     cfg,
		logger:     logger,
		maxRetries: maxRetries,
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts, retrying with
// exponential backoff on transient failures.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	var vectors [][]float32
	err := p.withRetry(ctx, func() error {
		var embErr error
		vectors, embErr = p.embedder.EmbedDocuments(ctx, texts)
		return embErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	var vector []float32
	err := p.withRetry(ctx, func() error {
		var embErr error
		vector, embErr = p.embedder.EmbedQuery(ctx, text)
		return embErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

// Dimension returns the embedding dimension for the configured model.
func (p *OpenAIProvider) Dimension() int {
	return p.config.Dimension
}

// Close releases resources. The HTTP-backed provider has none.
func (p *OpenAIProvider) Close() error {
	return nil
}

// withRetry runs operation up to maxRetries times with exponential backoff.
func (p *OpenAIProvider) withRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := time.Second

	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		if err := operation(); err != nil {
			lastErr = err
			p.logger.Warn(ctx, "embedding attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.maxRetries),
				zap.Error(err),
			)
			continue
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
