package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/answerd/internal/citations"
	"github.com/fyrsmithlabs/answerd/internal/config"
	"github.com/fyrsmithlabs/answerd/internal/logging"
	"github.com/fyrsmithlabs/answerd/internal/reranker"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

type fakeStore struct {
	results []vectorstore.SearchResult
	err     error
	lastK   int
}

func (f *fakeStore) EnsureCollection(context.Context) error { return nil }

func (f *fakeStore) AddDocuments(context.Context, []vectorstore.Document, [][]float32, []vectorstore.SparseVector) error {
	return nil
}

func (f *fakeStore) HybridSearch(_ context.Context, _ string, topK int) ([]vectorstore.SearchResult, error) {
	f.lastK = topK
	return f.results, f.err
}

func (f *fakeStore) Close() error { return nil }

type fakeLLM struct {
	response   map[string]any
	err        error
	lastPrompt string
	lastModel  string
	calls      int
}

func (f *fakeLLM) ChatJSON(_ context.Context, prompt, model string) (map[string]any, error) {
	f.calls++
	f.lastPrompt = prompt
	f.lastModel = model
	return f.response, f.err
}

type fakeReranker struct {
	result *reranker.Result
}

func (f *fakeReranker) Rerank(context.Context, string, []reranker.Document, int) (*reranker.Result, error) {
	return f.result, nil
}

func corpusStore() *fakeStore {
	return &fakeStore{results: []vectorstore.SearchResult{
		{Text: "SUTD has four pillars.", Metadata: map[string]any{"source": "docA"}, Score: 0.9},
		{Text: "ASD covers architecture.", Metadata: map[string]any{"source": "docB"}, Score: 0.7},
	}}
}

func newTestPipeline(t *testing.T, cfg Config, store vectorstore.Store, llm *fakeLLM, rerank reranker.Reranker) *Pipeline {
	t.Helper()
	if cfg.TopK == 0 {
		cfg.TopK = 10
	}
	p, err := NewPipeline(cfg, store, llm, rerank, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	return p
}

func TestNewPipeline_Validation(t *testing.T) {
	logger := logging.NewTestLogger().Logger
	store := &fakeStore{}
	client := &fakeLLM{}

	_, err := NewPipeline(Config{TopK: 10}, nil, client, nil, logger)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPipeline(Config{TopK: 10}, store, nil, nil, logger)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPipeline(Config{TopK: 0}, store, client, nil, logger)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPipeline(Config{TopK: 10, RerankPolicy: "bogus"}, store, client, nil, logger)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPipeline(Config{TopK: 10}, store, client, &fakeReranker{}, logger)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRun_EndToEnd(t *testing.T) {
	store := corpusStore()
	llm := &fakeLLM{response: map[string]any{
		"text": "SUTD has four pillars.[docA] ASD covers architecture.[docB]",
	}}

	p := newTestPipeline(t, Config{TopK: 10}, store, llm, nil)
	state, err := p.Run(context.Background(), "What pillars does SUTD have?", "chat-1", "")
	require.NoError(t, err)

	assert.Equal(t, 10, store.lastK)
	require.Len(t, state.Context, 2)

	// The context block must carry both texts with their bracketed sources.
	assert.Contains(t, llm.lastPrompt, "SUTD has four pillars. [source: docA]")
	assert.Contains(t, llm.lastPrompt, "ASD covers architecture. [source: docB]")
	assert.Contains(t, llm.lastPrompt, "What pillars does SUTD have?")

	// Bare document names are not URLs, so they stay inline; the cited
	// segment case is covered separately with URL sources.
	segments := citations.Parse(state.Answer)
	require.NotEmpty(t, segments)
	assert.Equal(t, state.Answer, segments[0].Text)

	saved, ok := p.Resume("chat-1")
	require.True(t, ok)
	assert.Equal(t, state.Answer, saved.Answer)
}

func TestRun_CitedAnswerSegments(t *testing.T) {
	store := &fakeStore{results: []vectorstore.SearchResult{
		{Text: "SUTD has four pillars.", Metadata: map[string]any{"source": "http://sutd.edu/docA"}, Score: 0.9},
		{Text: "ASD covers architecture.", Metadata: map[string]any{"source": "http://sutd.edu/docB"}, Score: 0.7},
	}}
	llm := &fakeLLM{response: map[string]any{
		"text": "SUTD has four pillars.[http://sutd.edu/docA]",
	}}

	p := newTestPipeline(t, Config{}, store, llm, nil)
	state, err := p.Run(context.Background(), "What pillars does SUTD have?", "", "")
	require.NoError(t, err)

	segments := citations.Parse(state.Answer)
	found := false
	for _, seg := range segments {
		if seg.Source != nil && *seg.Source == "http://sutd.edu/docA" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRun_EmptyContextShortCircuits(t *testing.T) {
	llm := &fakeLLM{}
	p := newTestPipeline(t, Config{}, &fakeStore{}, llm, nil)

	state, err := p.Run(context.Background(), "anything", "", "")
	require.NoError(t, err)
	assert.Equal(t, NoContextAnswer, state.Answer)
	assert.Zero(t, llm.calls)
}

func TestRun_LLMFailureYieldsPlaceholder(t *testing.T) {
	tests := []struct {
		name     string
		response map[string]any
	}{
		{name: "nil response", response: nil},
		{name: "missing text field", response: map[string]any{"answer": "wrong key"}},
		{name: "non-string text", response: map[string]any{"text": 42.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t, Config{}, corpusStore(), &fakeLLM{response: tt.response}, nil)
			state, err := p.Run(context.Background(), "q", "", "")
			require.NoError(t, err)
			assert.Equal(t, NoResponseAnswer, state.Answer)
		})
	}
}

func TestRun_RetrievalFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("backend down")}
	p := newTestPipeline(t, Config{}, store, &fakeLLM{}, nil)

	_, err := p.Run(context.Background(), "q", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval failed")
}

func TestRun_RerankReordersAndFilters(t *testing.T) {
	rerank := &fakeReranker{result: &reranker.Result{Results: []reranker.RankedIndex{
		{Index: 1, Score: 0.9},
		{Index: 7, Score: 0.5}, // out of range, dropped
		{Index: 0, Score: 0.3},
	}}}
	llm := &fakeLLM{response: map[string]any{"text": "ok"}}

	p := newTestPipeline(t, Config{RerankTopK: 5}, corpusStore(), llm, rerank)
	state, err := p.Run(context.Background(), "q", "", "")
	require.NoError(t, err)

	require.Len(t, state.Context, 2)
	assert.Equal(t, "ASD covers architecture.", state.Context[0].Text)
	assert.Equal(t, "SUTD has four pillars.", state.Context[1].Text)
}

func TestRun_RerankFailurePolicies(t *testing.T) {
	t.Run("strict drops context", func(t *testing.T) {
		llm := &fakeLLM{}
		p := newTestPipeline(t, Config{RerankTopK: 5, RerankPolicy: config.RerankPolicyStrict},
			corpusStore(), llm, &fakeReranker{result: nil})

		state, err := p.Run(context.Background(), "q", "", "")
		require.NoError(t, err)
		assert.Empty(t, state.Context)
		assert.Equal(t, NoContextAnswer, state.Answer)
		assert.Zero(t, llm.calls)
	})

	t.Run("lenient keeps retrieved context", func(t *testing.T) {
		llm := &fakeLLM{response: map[string]any{"text": "answered"}}
		p := newTestPipeline(t, Config{RerankTopK: 5, RerankPolicy: config.RerankPolicyLenient},
			corpusStore(), llm, &fakeReranker{result: nil})

		state, err := p.Run(context.Background(), "q", "", "")
		require.NoError(t, err)
		assert.Len(t, state.Context, 2)
		assert.Equal(t, "answered", state.Answer)
	})
}

func TestRun_ModelOverridePassedThrough(t *testing.T) {
	llm := &fakeLLM{response: map[string]any{"text": "ok"}}
	p := newTestPipeline(t, Config{}, corpusStore(), llm, nil)

	_, err := p.Run(context.Background(), "q", "", "special-model")
	require.NoError(t, err)
	assert.Equal(t, "special-model", llm.lastModel)
}

func TestRun_ThreadCheckpointIsolation(t *testing.T) {
	llm := &fakeLLM{response: map[string]any{"text": "first"}}
	p := newTestPipeline(t, Config{}, corpusStore(), llm, nil)

	_, err := p.Run(context.Background(), "first question", "t1", "")
	require.NoError(t, err)

	llm.response = map[string]any{"text": "second"}
	_, err = p.Run(context.Background(), "second question", "t2", "")
	require.NoError(t, err)

	s1, ok := p.Resume("t1")
	require.True(t, ok)
	s2, ok2 := p.Resume("t2")
	require.True(t, ok2)
	assert.Equal(t, "first", s1.Answer)
	assert.Equal(t, "second", s2.Answer)

	_, ok = p.Resume("t3")
	assert.False(t, ok)
}
