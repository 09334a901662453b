// Package workflow orchestrates the query pipeline: analyze the question,
// retrieve context via hybrid search, optionally rerank it, and generate a
// cited answer.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/checkpoint"
	"github.com/fyrsmithlabs/answerd/internal/config"
	"github.com/fyrsmithlabs/answerd/internal/llm"
	"github.com/fyrsmithlabs/answerd/internal/logging"
	"github.com/fyrsmithlabs/answerd/internal/reranker"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

// Fixed fallback answers. Clients key off these strings, so they never change.
const (
	NoContextAnswer  = "Sorry, I couldn't find any relevant information for your query."
	NoResponseAnswer = "No response generated"
)

const defaultRequestTimeout = 60 * time.Second

// ErrInvalidConfig indicates invalid pipeline configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// QueryState carries the pipeline state across stages. Each stage reads the
// fields written by its predecessors and adds its own.
type QueryState struct {
	// Question is the raw user question.
	Question string

	// Query is the analyzed search query derived from the question.
	Query vectorstore.SearchResult

	// Context holds the retrieved (and possibly reranked) chunks.
	Context []vectorstore.Document

	// Answer is the generated response text.
	Answer string

	// Model is the per-request model override, empty for the default.
	Model string
}

// Config holds pipeline tuning knobs.
type Config struct {
	// TopK is the hybrid search result count.
	TopK int

	// RerankTopK is how many documents survive reranking.
	RerankTopK int

	// RerankPolicy controls the context after a failed or empty rerank:
	// config.RerankPolicyStrict drops it, config.RerankPolicyLenient keeps it.
	RerankPolicy string

	// RequestTimeout bounds one end-to-end Run. Defaults to 60s.
	RequestTimeout time.Duration
}

// Pipeline runs the query stages in a fixed order. A nil reranker disables
// the rerank stage.
type Pipeline struct {
	config   Config
	store    vectorstore.Store
	llm      llm.Client
	reranker reranker.Reranker
	saver    *checkpoint.MemorySaver[QueryState]
	logger   *logging.Logger
}

// NewPipeline creates a query pipeline. rerank may be nil.
func NewPipeline(cfg Config, store vectorstore.Store, llmClient llm.Client, rerank reranker.Reranker, logger *logging.Logger) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if llmClient == nil {
		return nil, fmt.Errorf("%w: llm client is required", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}
	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", ErrInvalidConfig)
	}
	if rerank != nil && cfg.RerankTopK <= 0 {
		return nil, fmt.Errorf("%w: rerank top_k must be positive", ErrInvalidConfig)
	}
	switch cfg.RerankPolicy {
	case "":
		cfg.RerankPolicy = config.RerankPolicyStrict
	case config.RerankPolicyStrict, config.RerankPolicyLenient:
	default:
		return nil, fmt.Errorf("%w: unknown rerank policy %q", ErrInvalidConfig, cfg.RerankPolicy)
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	return &Pipeline{
		config:   cfg,
		store:    store,
		llm:      llmClient,
		reranker: rerank,
		saver:    checkpoint.NewMemorySaver[QueryState](),
		logger:   logger,
	}, nil
}

// Run executes the pipeline for question. threadID scopes the conversation
// checkpoint; model optionally overrides the configured LLM model for this
// request.
func (p *Pipeline) Run(ctx context.Context, question, threadID, model string) (QueryState, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	ctx = logging.ContextWithThreadID(ctx, threadID)

	state := QueryState{Question: question, Model: model}
	state = p.analyzeQuery(ctx, state)

	state, err := p.retrieve(ctx, state)
	if err != nil {
		return state, err
	}

	state = p.rerank(ctx, state)
	state = p.generate(ctx, state)

	if threadID != "" {
		p.saver.Put(threadID, state)
	}
	return state, nil
}

// Resume returns the last checkpointed state for threadID.
func (p *Pipeline) Resume(threadID string) (QueryState, bool) {
	return p.saver.Get(threadID)
}

// analyzeQuery prepares the search query. Currently a pass-through wrapping
// the question; the hook exists so query rewriting can slot in later.
func (p *Pipeline) analyzeQuery(_ context.Context, state QueryState) QueryState {
	state.Query = vectorstore.SearchResult{Text: state.Question, Metadata: map[string]any{}, Score: 0}
	return state
}

// retrieve fetches context chunks via hybrid search.
func (p *Pipeline) retrieve(ctx context.Context, state QueryState) (QueryState, error) {
	p.logger.Info(ctx, "retrieving documents", zap.String("query", state.Query.Text))

	hits, err := p.store.HybridSearch(ctx, state.Query.Text, p.config.TopK)
	if err != nil {
		return state, fmt.Errorf("retrieval failed: %w", err)
	}

	docs := make([]vectorstore.Document, 0, len(hits))
	for _, hit := range hits {
		meta := hit.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		docs = append(docs, vectorstore.Document{Text: hit.Text, Metadata: meta})
	}
	state.Context = docs
	return state, nil
}

// rerank reorders the context by cross-encoder relevance. A degraded rerank
// (nil or empty result) applies the configured failure policy.
func (p *Pipeline) rerank(ctx context.Context, state QueryState) QueryState {
	if p.reranker == nil || len(state.Context) == 0 {
		return state
	}
	p.logger.Info(ctx, "reranking documents", zap.Int("count", len(state.Context)))

	docs := make([]reranker.Document, len(state.Context))
	for i, doc := range state.Context {
		docs[i] = reranker.Document{Text: doc.Text, Metadata: doc.Metadata}
	}

	result, err := p.reranker.Rerank(ctx, state.Query.Text, docs, p.config.RerankTopK)
	if err != nil || result == nil || len(result.Results) == 0 {
		if p.config.RerankPolicy == config.RerankPolicyLenient {
			p.logger.Warn(ctx, "rerank unavailable, keeping retrieved context")
			return state
		}
		p.logger.Warn(ctx, "rerank unavailable, dropping context")
		state.Context = nil
		return state
	}

	reranked := make([]vectorstore.Document, 0, len(result.Results))
	for _, item := range result.Results {
		if item.Index < 0 || item.Index >= len(state.Context) {
			p.logger.Warn(ctx, "rerank returned out-of-range index", zap.Int("index", item.Index))
			continue
		}
		reranked = append(reranked, state.Context[item.Index])
	}
	state.Context = reranked
	return state
}

// generate produces the final answer from the context. An empty context
// short-circuits without an LLM call, and a degraded LLM response yields the
// fixed placeholder.
func (p *Pipeline) generate(ctx context.Context, state QueryState) QueryState {
	if len(state.Context) == 0 {
		state.Answer = NoContextAnswer
		return state
	}
	p.logger.Info(ctx, "generating response", zap.Int("context_size", len(state.Context)))

	prompt := formatPrompt(state.Question, formatContext(state.Context))
	response, err := p.llm.ChatJSON(ctx, prompt, state.Model)
	if err != nil {
		p.logger.Warn(ctx, "generation failed", zap.Error(err))
		state.Answer = NoResponseAnswer
		return state
	}

	text, ok := response["text"].(string)
	if !ok {
		if response != nil {
			p.logger.Warn(ctx, "completion missing text field")
		}
		state.Answer = NoResponseAnswer
		return state
	}
	state.Answer = text
	return state
}

// formatContext renders the context block, one chunk per paragraph with its
// bracketed source.
func formatContext(docs []vectorstore.Document) string {
	lines := make([]string, len(docs))
	for i, doc := range docs {
		source := "unknown"
		if s, ok := doc.Metadata["source"].(string); ok && s != "" {
			source = s
		}
		lines[i] = fmt.Sprintf("%s [source: %s]", doc.Text, source)
	}
	return strings.Join(lines, "\n\n")
}

// formatPrompt builds the generation instruction prompt.
func formatPrompt(question, context string) string {
	return fmt.Sprintf(`You are a technical assistant. Strictly follow these rules:

1. Answer ONLY using the provided context
2. If information is missing, say: "I don't have sufficient information to answer this."
3. Maximum 10 sentences, be technical and precise
4. Provide citations with the source URL immediately after the statement in square brackets.
5. No markdown or formatting.
6. Return ONLY JSON with "text" field.

**Question**: %s

**Context**: %s

Example Response:
{ "text": "The Freshmore curriculum is great.[https://www.sutd.edu.sg/education]" }`, question, context)
}
