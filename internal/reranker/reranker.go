// Package reranker provides cross-encoder document re-ranking for
// improving retrieval quality.
package reranker

import "context"

// Document is one rerank candidate.
type Document struct {
	// Text is the content scored against the query.
	Text string

	// Metadata is carried through untouched for the caller.
	Metadata map[string]any
}

// RankedIndex points back into the candidate list with a relevance score.
type RankedIndex struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

// Result is a rerank response: candidate indices ordered by relevance.
type Result struct {
	Results []RankedIndex `json:"results"`
}

// Reranker re-scores a candidate set against a query.
//
// Rerank returns (nil, nil) on any transport or API failure: a broken
// reranker must never fail the request. Callers treat a nil result as
// "skip reranking" and are responsible for bounds-checking the returned
// indices against their candidate list.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []Document, topK int) (*Result, error)
}
