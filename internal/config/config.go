// Package config provides configuration loading for answerd.
//
// Configuration is loaded from an optional YAML file, then overridden by
// environment variables. The resulting Config is validated eagerly at
// startup and treated as immutable afterwards: every component receives
// its section at construction time and never re-reads the environment.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for configuration validation.
var (
	// ErrInvalidConfig indicates an invalid configuration value.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingCredential indicates a required credential is not set.
	ErrMissingCredential = errors.New("missing required credential")
)

// Vector store providers.
const (
	ProviderQdrant  = "qdrant"
	ProviderChromem = "chromem"
)

// Embedding providers.
const (
	EmbeddingsOpenAI    = "openai"
	EmbeddingsFastEmbed = "fastembed"
)

// Rerank failure context policies.
const (
	RerankPolicyStrict  = "strict"
	RerankPolicyLenient = "lenient"
)

// Config holds the complete answerd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Store      StoreConfig      `koanf:"store"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	LLM        LLMConfig        `koanf:"llm"`
	Reranker   RerankerConfig   `koanf:"reranker"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Chunking   ChunkingConfig   `koanf:"chunking"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// RequestTimeout bounds one end-to-end query pipeline invocation.
	RequestTimeout Duration `koanf:"request_timeout"`
}

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	// Provider selects the store backend: "qdrant" or "chromem".
	Provider   string        `koanf:"provider"`
	Collection string        `koanf:"collection"`
	Qdrant     QdrantConfig  `koanf:"qdrant"`
	Chromem    ChromemConfig `koanf:"chromem"`
	// UpsertBatchSize is the number of points per upsert batch.
	UpsertBatchSize int `koanf:"upsert_batch_size"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	UseTLS         bool     `koanf:"use_tls"`
	APIKey         Secret   `koanf:"api_key"`
	RequestTimeout Duration `koanf:"request_timeout"`
	RetryAttempts  int      `koanf:"retry_attempts"`
}

// ChromemConfig holds embedded store settings.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory only.
	Path string `koanf:"path"`
}

// EmbeddingsConfig holds dense embedding backend settings.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "openai" (OpenAI-compatible API)
	// or "fastembed" (local ONNX models).
	Provider string `koanf:"provider"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	Model    string `koanf:"model"`
	// Dimension is the dense vector dimensionality of the model.
	Dimension int `koanf:"dimension"`
	// MaxRetries bounds embedding retry attempts before the zero-vector fallback.
	MaxRetries int `koanf:"max_retries"`
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string `koanf:"cache_dir"`
}

// LLMConfig holds chat completion backend settings.
type LLMConfig struct {
	BaseURL string   `koanf:"base_url"`
	APIKey  Secret   `koanf:"api_key"`
	Model   string   `koanf:"model"`
	Timeout Duration `koanf:"timeout"`
}

// RerankerConfig holds rerank API settings.
type RerankerConfig struct {
	Enabled bool     `koanf:"enabled"`
	BaseURL string   `koanf:"base_url"`
	APIKey  Secret   `koanf:"api_key"`
	Model   string   `koanf:"model"`
	TopK    int      `koanf:"top_k"`
	Timeout Duration `koanf:"timeout"`
	// FailurePolicy controls the context after a failed or empty rerank:
	// "strict" drops all context, "lenient" keeps the pre-rerank context.
	FailurePolicy string `koanf:"failure_policy"`
}

// RetrievalConfig holds hybrid search settings.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
	// PrefetchMultiplier is the over-fetch factor per sub-search before fusion.
	PrefetchMultiplier int `koanf:"prefetch_multiplier"`
}

// ChunkingConfig holds document splitting settings.
type ChunkingConfig struct {
	ChunkSize int `koanf:"chunk_size"`
	Overlap   int `koanf:"overlap"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a Config populated with defaults. Credentials are left
// empty and must come from the config file or environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
			RequestTimeout:  Duration(60 * time.Second),
		},
		Store: StoreConfig{
			Provider:        ProviderQdrant,
			Collection:      "answerd",
			UpsertBatchSize: 1000,
			Qdrant: QdrantConfig{
				Host:           "localhost",
				Port:           6334,
				RequestTimeout: Duration(30 * time.Second),
				RetryAttempts:  3,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider:   EmbeddingsOpenAI,
			BaseURL:    "https://api.together.xyz/v1",
			Model:      "Alibaba-NLP/gte-modernbert-base",
			Dimension:  768,
			MaxRetries: 5,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.together.xyz/v1",
			Model:   "zai-org/GLM-4.5-Air-FP8",
			Timeout: Duration(60 * time.Second),
		},
		Reranker: RerankerConfig{
			Enabled:       false,
			BaseURL:       "https://api.jina.ai/v1/rerank",
			Model:         "jina-reranker-v1-tiny-en",
			TopK:          5,
			Timeout:       Duration(30 * time.Second),
			FailurePolicy: RerankPolicyStrict,
		},
		Retrieval: RetrievalConfig{
			TopK:               10,
			PrefetchMultiplier: 3,
		},
		Chunking: ChunkingConfig{
			ChunkSize: 500,
			Overlap:   100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration, failing fast on anything that would
// otherwise surface mid-request.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}

	switch c.Store.Provider {
	case ProviderQdrant:
		if c.Store.Qdrant.Host == "" {
			return fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
		}
		if c.Store.Qdrant.Port <= 0 || c.Store.Qdrant.Port > 65535 {
			return fmt.Errorf("%w: qdrant port %d out of range", ErrInvalidConfig, c.Store.Qdrant.Port)
		}
	case ProviderChromem:
		// Path may be empty (in-memory store).
	default:
		return fmt.Errorf("%w: unknown store provider %q", ErrInvalidConfig, c.Store.Provider)
	}
	if c.Store.Collection == "" {
		return fmt.Errorf("%w: store collection name required", ErrInvalidConfig)
	}
	if c.Store.UpsertBatchSize <= 0 {
		return fmt.Errorf("%w: upsert batch size must be positive", ErrInvalidConfig)
	}

	switch c.Embeddings.Provider {
	case EmbeddingsOpenAI:
		if c.Embeddings.BaseURL == "" {
			return fmt.Errorf("%w: embeddings base URL required", ErrInvalidConfig)
		}
		if !c.Embeddings.APIKey.IsSet() {
			return fmt.Errorf("%w: embeddings API key", ErrMissingCredential)
		}
	case EmbeddingsFastEmbed:
		// Local provider, no credentials.
	default:
		return fmt.Errorf("%w: unknown embeddings provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}
	if c.Embeddings.Model == "" {
		return fmt.Errorf("%w: embeddings model required", ErrInvalidConfig)
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("%w: embeddings dimension must be positive", ErrInvalidConfig)
	}
	if c.Embeddings.MaxRetries <= 0 {
		return fmt.Errorf("%w: embeddings max retries must be positive", ErrInvalidConfig)
	}

	if c.LLM.BaseURL == "" {
		return fmt.Errorf("%w: llm base URL required", ErrInvalidConfig)
	}
	if !c.LLM.APIKey.IsSet() {
		return fmt.Errorf("%w: llm API key", ErrMissingCredential)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("%w: llm model required", ErrInvalidConfig)
	}

	if c.Reranker.Enabled {
		if c.Reranker.BaseURL == "" {
			return fmt.Errorf("%w: reranker base URL required", ErrInvalidConfig)
		}
		if !c.Reranker.APIKey.IsSet() {
			return fmt.Errorf("%w: reranker API key", ErrMissingCredential)
		}
		if c.Reranker.TopK <= 0 {
			return fmt.Errorf("%w: reranker top_k must be positive", ErrInvalidConfig)
		}
	}
	switch c.Reranker.FailurePolicy {
	case RerankPolicyStrict, RerankPolicyLenient:
	default:
		return fmt.Errorf("%w: unknown rerank failure policy %q", ErrInvalidConfig, c.Reranker.FailurePolicy)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval top_k must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.PrefetchMultiplier <= 0 {
		return fmt.Errorf("%w: retrieval prefetch multiplier must be positive", ErrInvalidConfig)
	}

	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("%w: chunk overlap cannot be negative", ErrInvalidConfig)
	}
	if c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			ErrInvalidConfig, c.Chunking.Overlap, c.Chunking.ChunkSize)
	}

	return nil
}
