package vectorstore

import "sort"

// rrfK is the standard Reciprocal Rank Fusion damping constant. Lower
// values would overweight rank-1 hits.
const rrfK = 60

// selectHybrid picks the final result set after the two sub-searches
// return. Without sparse hits (lexical side disabled or degraded) the
// dense ranking stands alone, clamped to topK; otherwise the two
// rankings are fused.
func selectHybrid(dense, sparse []SearchResult, topK int) []SearchResult {
	if len(sparse) == 0 {
		if topK > len(dense) {
			topK = len(dense)
		}
		return dense[:topK]
	}
	return fuseRRF(dense, sparse, topK)
}

// fusionCandidate tracks one document's ranks across the dense and sparse
// result lists. A rank of -1 means the document did not appear in that list.
type fusionCandidate struct {
	result     SearchResult
	denseRank  int
	sparseRank int
	score      float64
	order      int // insertion order, the deterministic tiebreaker
}

// fuseRRF combines the dense and sparse result lists with Reciprocal Rank
// Fusion: each list contributes 1/(rrfK + rank + 1) per document, summed
// when a document appears in both. Results are keyed by the deterministic
// point id so the same chunk surfacing in both lists is fused, not
// duplicated. Ties break by first-seen order across the two input lists.
func fuseRRF(dense, sparse []SearchResult, topK int) []SearchResult {
	candidates := make(map[string]*fusionCandidate)
	order := 0

	absorb := func(results []SearchResult, isDense bool) {
		for rank, res := range results {
			key := PointID(Document{Text: res.Text, Metadata: res.Metadata})
			cand, ok := candidates[key]
			if !ok {
				cand = &fusionCandidate{
					result:     res,
					denseRank:  -1,
					sparseRank: -1,
					order:      order,
				}
				order++
				candidates[key] = cand
			}
			if isDense {
				cand.denseRank = rank
			} else {
				cand.sparseRank = rank
			}
			cand.score += 1.0 / float64(rrfK+rank+1)
		}
	}

	absorb(dense, true)
	absorb(sparse, false)

	fused := make([]*fusionCandidate, 0, len(candidates))
	for _, cand := range candidates {
		fused = append(fused, cand)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].order < fused[j].order
	})

	if topK > len(fused) {
		topK = len(fused)
	}
	out := make([]SearchResult, 0, topK)
	for _, cand := range fused[:topK] {
		res := cand.result
		res.Score = cand.score
		out = append(out, res)
	}
	return out
}
