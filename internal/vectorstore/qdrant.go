package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/answerd/internal/logging"
)

// Named vectors in the Qdrant collection.
const (
	denseVectorName  = "dense"
	sparseVectorName = "bm25"
)

// QdrantConfig configures the Qdrant-backed store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334 by default, not the HTTP 6333).
	Port int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// APIKey is the optional API key for authentication.
	APIKey string

	// Collection is the target collection name.
	Collection string

	// Dimension is the dense vector dimensionality for collection bootstrap.
	Dimension int

	// UpsertBatchSize is the number of points per upsert call.
	UpsertBatchSize int

	// RequestTimeout bounds individual requests.
	RequestTimeout time.Duration

	// RetryAttempts is the number of retries for transient failures.
	RetryAttempts int

	// PrefetchMultiplier is the over-fetch factor per sub-search before
	// rank fusion.
	PrefetchMultiplier int

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.UpsertBatchSize == 0 {
		c.UpsertBatchSize = 1000
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.PrefetchMultiplier == 0 {
		c.PrefetchMultiplier = 3
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore implements Store over a Qdrant gRPC connection with a named
// dense vector and a named sparse (lexical) vector per point.
type QdrantStore struct {
	client   *qdrant.Client
	config   *QdrantConfig
	embedder Embedder
	sparse   SparseEncoder
	logger   *logging.Logger
}

// NewQdrantStore connects to Qdrant, verifies the connection, and ensures
// the target collection exists. A failed health check or bootstrap is fatal:
// the service must not run with a broken index.
func NewQdrantStore(cfg *QdrantConfig, embedder Embedder, sparse SparseEncoder, logger *logging.Logger) (*QdrantStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	qdrantConfig := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	}
	if !cfg.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{
		client:   client,
		config:   cfg,
		embedder: embedder,
		sparse:   sparse,
		logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check failed: %v", ErrConnectionFailed, err)
	}

	if err := s.EnsureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info(ctx, "qdrant connection established",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
	)

	return s, nil
}

// EnsureCollection creates the collection with the configured dense
// dimensionality and an IDF-modified sparse index if it does not exist yet.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	exists, err := s.collectionExists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBootstrapFailed, err)
	}
	if exists {
		s.logger.Info(ctx, "collection already exists", zap.String("collection", s.config.Collection))
		return nil
	}

	err = s.retryOperation(ctx, func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
				denseVectorName: {
					Size:     uint64(s.config.Dimension),
					Distance: qdrant.Distance_Cosine,
				},
			}),
			SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
				sparseVectorName: {
					Modifier: qdrant.Modifier_Idf.Enum(),
				},
			}),
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBootstrapFailed, err)
	}

	s.logger.Info(ctx, "created collection",
		zap.String("collection", s.config.Collection),
		zap.Int("dimension", s.config.Dimension),
	)
	return nil
}

func (s *QdrantStore) collectionExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.retryOperation(ctx, func() error {
		info, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	return exists, err
}

// AddDocuments upserts chunks in batches. Point ids are deterministic, so
// re-ingesting identical content updates in place. A batch with zero valid
// points is a no-op, logged as a warning.
func (s *QdrantStore) AddDocuments(ctx context.Context, docs []Document, dense [][]float32, sparse []SparseVector) error {
	if len(docs) == 0 {
		return fmt.Errorf("%w", ErrEmptyDocuments)
	}
	if len(dense) != len(docs) {
		return fmt.Errorf("%w: %d documents but %d dense embeddings", ErrInvalidConfig, len(docs), len(dense))
	}

	batchSize := s.config.UpsertBatchSize
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}

		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			doc := docs[i]
			if doc.Text == "" {
				continue
			}

			payload := map[string]any{"text": doc.Text}
			for k, v := range doc.Metadata {
				payload[k] = v
			}

			vectors := map[string]*qdrant.Vector{
				denseVectorName: qdrant.NewVector(dense[i]...),
			}
			if sparse != nil && i < len(sparse) && !sparse[i].IsZero() {
				vectors[sparseVectorName] = qdrant.NewVectorSparse(sparse[i].Indices, sparse[i].Values)
			}

			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(PointID(doc)),
				Vectors: qdrant.NewVectorsMap(vectors),
				Payload: qdrant.NewValueMap(payload),
			})
		}

		if len(points) == 0 {
			s.logger.Warn(ctx, "no points to upsert in batch",
				zap.Int("batch_start", start),
				zap.Int("batch_end", end),
			)
			continue
		}

		s.logger.Info(ctx, "upserting points",
			zap.Int("count", len(points)),
			zap.Int("batch_start", start),
			zap.Int("batch_end", end),
		)

		upsertCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		err := s.retryOperation(upsertCtx, func() error {
			_, err := s.client.Upsert(upsertCtx, &qdrant.UpsertPoints{
				CollectionName: s.config.Collection,
				Points:         points,
			})
			return err
		})
		cancel()
		if err != nil {
			return fmt.Errorf("upserting batch at %d: %w", start, err)
		}
	}

	return nil
}

// HybridSearch runs the dense and sparse sub-searches concurrently,
// over-fetching topK*3 candidates each, and fuses the rankings with
// Reciprocal Rank Fusion. A failed or unavailable sparse side degrades to
// the dense ranking alone.
func (s *QdrantStore) HybridSearch(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", ErrInvalidConfig)
	}

	denseVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var sparseVec SparseVector
	if s.sparse != nil {
		sparseVec = s.sparse.EncodeQuery(query)
	}

	// Over-fetch so fusion has enough material. The multiplier is an
	// empirical constant, not a correctness requirement.
	prefetch := uint64(topK * s.config.PrefetchMultiplier)

	var (
		wg         sync.WaitGroup
		denseHits  []SearchResult
		sparseHits []SearchResult
		denseErr   error
		sparseErr  error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		denseHits, denseErr = s.queryDense(ctx, denseVec, prefetch)
	}()

	if !sparseVec.IsZero() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sparseHits, sparseErr = s.querySparse(ctx, sparseVec, prefetch)
		}()
	}

	wg.Wait()

	if denseErr != nil {
		return nil, fmt.Errorf("dense search: %w", denseErr)
	}
	if sparseErr != nil {
		// Graceful degradation: a broken lexical side must not fail the
		// request.
		s.logger.Warn(ctx, "sparse search failed, falling back to dense-only",
			zap.Error(sparseErr),
		)
		sparseHits = nil
	}

	results := selectHybrid(denseHits, sparseHits, topK)

	s.logger.Info(ctx, "hybrid search complete",
		zap.Int("dense_hits", len(denseHits)),
		zap.Int("sparse_hits", len(sparseHits)),
		zap.Int("returned", len(results)),
	)
	return results, nil
}

func (s *QdrantStore) queryDense(ctx context.Context, vector []float32, limit uint64) ([]SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	var points []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Using:          qdrant.PtrOf(denseVectorName),
			Limit:          qdrant.PtrOf(limit),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scoredPointsToResults(points), nil
}

func (s *QdrantStore) querySparse(ctx context.Context, vector SparseVector, limit uint64) ([]SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	var points []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuerySparse(vector.Indices, vector.Values),
			Using:          qdrant.PtrOf(sparseVectorName),
			Limit:          qdrant.PtrOf(limit),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scoredPointsToResults(points), nil
}

// scoredPointsToResults maps Qdrant hits to SearchResults, dropping any hit
// without text: empty-context handling belongs to the generate stage, but
// empty-text results must never reach the orchestrator.
func scoredPointsToResults(points []*qdrant.ScoredPoint) []SearchResult {
	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		text := payload["text"].GetStringValue()
		if text == "" {
			continue
		}

		metadata := make(map[string]any, len(payload)-1)
		for k, v := range payload {
			if k == "text" {
				continue
			}
			metadata[k] = valueToAny(v)
		}

		results = append(results, SearchResult{
			Text:     text,
			Metadata: metadata,
			Score:    float64(p.GetScore()),
		})
	}
	return results
}

// valueToAny converts a Qdrant payload value to a plain Go value.
func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, valueToAny(item))
		}
		return out
	case *qdrant.Value_StructValue:
		fields := kind.StructValue.GetFields()
		out := make(map[string]any, len(fields))
		for k, item := range fields {
			out[k] = valueToAny(item)
		}
		return out
	default:
		return nil
	}
}

// Close closes the client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff for
// transient gRPC failures.
func (s *QdrantStore) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				s.logger.Info(ctx, "operation recovered after retries", zap.Int("attempts", attempt))
			}
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable reports whether a gRPC error is worth retrying.
func isRetryable(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}
