// Answerd is a retrieval-augmented question answering daemon.
//
// It serves ingestion and query endpoints over HTTP, backed by a hybrid
// (dense + lexical) vector index and an OpenAI-compatible LLM.
//
// Configuration is loaded from a YAML file plus ANSWERD_* environment
// overrides. See internal/config for details.
//
// Usage:
//
//	# Start with defaults plus environment overrides
//	ANSWERD_LLM_API_KEY=... answerd
//
//	# Start with a config file
//	answerd -config /etc/answerd/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/answerd/internal/config"
	"github.com/fyrsmithlabs/answerd/internal/embeddings"
	"github.com/fyrsmithlabs/answerd/internal/ingest"
	"github.com/fyrsmithlabs/answerd/internal/llm"
	"github.com/fyrsmithlabs/answerd/internal/logging"
	"github.com/fyrsmithlabs/answerd/internal/reranker"
	"github.com/fyrsmithlabs/answerd/internal/server"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
	"github.com/fyrsmithlabs/answerd/internal/workflow"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("answerd\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n", version, gitCommit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("answerd: %v", err)
	}
	log.Println("shutdown complete")
}

// run wires every component and blocks until ctx is cancelled. Bootstrap
// failures (bad config, unreachable vector store) are fatal: the daemon
// never runs with a broken index.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	embedder, err := embeddings.NewProvider(cfg.Embeddings, logger)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	defer embedder.Close()

	sparse := embeddings.NewBM25Encoder()

	store, err := vectorstore.NewStore(cfg, embedder, sparse, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer store.Close()

	llmClient, err := llm.NewOpenAIClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey.Value(),
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout.Duration(),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}

	var rerank reranker.Reranker
	if cfg.Reranker.Enabled {
		rerank, err = reranker.NewJinaClient(reranker.JinaConfig{
			BaseURL: cfg.Reranker.BaseURL,
			APIKey:  cfg.Reranker.APIKey.Value(),
			Model:   cfg.Reranker.Model,
			Timeout: cfg.Reranker.Timeout.Duration(),
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create reranker: %w", err)
		}
	}

	pipeline, err := workflow.NewPipeline(workflow.Config{
		TopK:           cfg.Retrieval.TopK,
		RerankTopK:     cfg.Reranker.TopK,
		RerankPolicy:   cfg.Reranker.FailurePolicy,
		RequestTimeout: cfg.Server.RequestTimeout.Duration(),
	}, store, llmClient, rerank, logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	ingester, err := ingest.NewService(ingest.Config{
		ChunkSize: cfg.Chunking.ChunkSize,
		Overlap:   cfg.Chunking.Overlap,
	}, store, embedder, sparse, logger)
	if err != nil {
		return fmt.Errorf("failed to create ingest service: %w", err)
	}

	srv, err := server.NewServer(server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, pipeline, ingester, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
