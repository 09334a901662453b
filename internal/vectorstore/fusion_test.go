package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(text string) SearchResult {
	return SearchResult{
		Text:     text,
		Metadata: map[string]any{"source": "src-" + text},
		Score:    0.5,
	}
}

func TestFuseRRFBothListsOutranksSingleList(t *testing.T) {
	// "both" appears at rank 1 in each list. A document present in both
	// lists must outscore any document at the same individual rank that
	// appears in only one list — here it even beats the rank-0 singles.
	dense := []SearchResult{result("top-dense"), result("both")}
	sparse := []SearchResult{result("top-sparse"), result("both")}

	fused := fuseRRF(dense, sparse, 10)
	require.Len(t, fused, 3)
	assert.Equal(t, "both", fused[0].Text)

	// Summed contribution from rank 1 in both lists.
	want := 1.0/float64(rrfK+2) + 1.0/float64(rrfK+2)
	assert.InDelta(t, want, fused[0].Score, 1e-12)
}

func TestFuseRRFScores(t *testing.T) {
	dense := []SearchResult{result("a"), result("b")}
	sparse := []SearchResult{result("b"), result("c")}

	fused := fuseRRF(dense, sparse, 10)
	require.Len(t, fused, 3)

	scores := map[string]float64{}
	for _, r := range fused {
		scores[r.Text] = r.Score
	}
	assert.InDelta(t, 1.0/61, scores["a"], 1e-12)
	assert.InDelta(t, 1.0/62+1.0/61, scores["b"], 1e-12)
	assert.InDelta(t, 1.0/62, scores["c"], 1e-12)

	// b summed both contributions and wins.
	assert.Equal(t, "b", fused[0].Text)
}

func TestFuseRRFTieBreakIsFirstSeenOrder(t *testing.T) {
	// a (dense rank 0) and x (sparse rank 0) tie on score; a was seen
	// first, so it must come first, deterministically.
	dense := []SearchResult{result("a")}
	sparse := []SearchResult{result("x")}

	for i := 0; i < 20; i++ {
		fused := fuseRRF(dense, sparse, 10)
		require.Len(t, fused, 2)
		assert.Equal(t, "a", fused[0].Text)
		assert.Equal(t, "x", fused[1].Text)
	}
}

func TestFuseRRFTruncatesToTopK(t *testing.T) {
	dense := []SearchResult{result("a"), result("b"), result("c")}
	sparse := []SearchResult{result("d"), result("e")}

	fused := fuseRRF(dense, sparse, 2)
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].Text)
	assert.Equal(t, "d", fused[1].Text)
}

func TestFuseRRFEmptyLists(t *testing.T) {
	assert.Empty(t, fuseRRF(nil, nil, 5))

	dense := []SearchResult{result("a")}
	fused := fuseRRF(dense, nil, 5)
	require.Len(t, fused, 1)
	assert.Equal(t, "a", fused[0].Text)
}

func TestSelectHybridDenseOnlyFallback(t *testing.T) {
	// No sparse hits, whether from a disabled encoder or a failed sparse
	// sub-search. The dense ranking must come back as-is, clamped to topK,
	// never an error or an empty set.
	dense := []SearchResult{result("a"), result("b"), result("c")}

	got := selectHybrid(dense, nil, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Text)
	assert.Equal(t, "b", got[1].Text)

	// topK beyond the dense list clamps instead of panicking.
	got = selectHybrid(dense, nil, 10)
	require.Len(t, got, 3)

	assert.Empty(t, selectHybrid(nil, nil, 5))
}

func TestSelectHybridFusesWhenSparsePresent(t *testing.T) {
	dense := []SearchResult{result("a"), result("b")}
	sparse := []SearchResult{result("b"), result("c")}

	got := selectHybrid(dense, sparse, 10)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Text)
	assert.InDelta(t, 1.0/62+1.0/61, got[0].Score, 1e-12)
}

func TestFuseRRFPreservesMetadata(t *testing.T) {
	fused := fuseRRF([]SearchResult{result("a")}, nil, 5)
	require.Len(t, fused, 1)
	assert.Equal(t, "src-a", fused[0].Metadata["source"])
}
