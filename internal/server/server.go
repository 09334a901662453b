// Package server provides the HTTP API for answerd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/chunker"
	"github.com/fyrsmithlabs/answerd/internal/citations"
	"github.com/fyrsmithlabs/answerd/internal/ingest"
	"github.com/fyrsmithlabs/answerd/internal/logging"
	"github.com/fyrsmithlabs/answerd/internal/workflow"
)

// ErrInvalidConfig indicates invalid server configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes the query and ingestion pipelines over HTTP.
type Server struct {
	echo     *echo.Echo
	pipeline *workflow.Pipeline
	ingester *ingest.Service
	logger   *logging.Logger
	config   Config
}

// NewServer creates an HTTP server wired to the given pipelines.
func NewServer(cfg Config, pipeline *workflow.Pipeline, ingester *ingest.Service, logger *logging.Logger) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("%w: pipeline is required", ErrInvalidConfig)
	}
	if ingester == nil {
		return nil, fmt.Errorf("%w: ingest service is required", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.ContextWithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			start := time.Now()
			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		pipeline: pipeline,
		ingester: ingester,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/query", s.handleQuery)
	v1.POST("/ingest/text", s.handleIngestText)
}

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	Query  string `json:"query"`
	ChatID string `json:"chat_id,omitempty"`
	Model  string `json:"model,omitempty"`
}

// QueryResponse is the response body for POST /api/v1/query.
type QueryResponse struct {
	ChatID   string                  `json:"chat_id"`
	Answer   string                  `json:"answer"`
	Segments []citations.TextSegment `json:"segments"`
}

// IngestDocument is one document in an ingestion request.
type IngestDocument struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// IngestTextRequest is the request body for POST /api/v1/ingest/text.
type IngestTextRequest struct {
	Documents []IngestDocument `json:"documents"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleQuery runs the query pipeline. A missing chat_id starts a new
// conversation with a generated id.
func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = uuid.NewString()
	}

	ctx := c.Request().Context()
	state, err := s.pipeline.Run(ctx, req.Query, chatID, req.Model)
	if err != nil {
		s.logger.Error(ctx, "query pipeline failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
	}

	return c.JSON(http.StatusOK, QueryResponse{
		ChatID:   chatID,
		Answer:   state.Answer,
		Segments: citations.Parse(state.Answer),
	})
}

// handleIngestText ingests raw text documents.
func (s *Server) handleIngestText(c echo.Context) error {
	var req IngestTextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents field is required")
	}

	docs := make([]chunker.SourceDocument, len(req.Documents))
	for i, doc := range req.Documents {
		docs[i] = chunker.SourceDocument{Text: doc.Text, Source: doc.Source}
	}

	ctx := c.Request().Context()
	result, err := s.ingester.IngestDocuments(ctx, docs)
	if err != nil {
		s.logger.Error(ctx, "ingestion failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed")
	}

	return c.JSON(http.StatusOK, result)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
