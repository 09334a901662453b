package embeddings

import (
	"hash/fnv"
	"sort"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

// BM25 term-saturation parameters, matching the usual defaults.
const (
	bm25K1        = 1.2
	bm25B         = 0.75
	bm25AvgLength = 256.0
)

// stopwords excluded from sparse vectors. Keeping this list short is fine:
// the IDF modifier on the index side already downweights frequent terms.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "in": {}, "is": {}, "it": {},
	"its": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "will": {}, "with": {},
}

// BM25Encoder produces lexical sparse vectors for Qdrant's sparse index.
// Term ids are FNV-1a hashes of lowercased tokens; document weights apply
// BM25 term-frequency saturation, and the index's IDF modifier supplies the
// inverse-document-frequency component at query time.
type BM25Encoder struct{}

// NewBM25Encoder creates a sparse encoder.
func NewBM25Encoder() *BM25Encoder {
	return &BM25Encoder{}
}

// EncodeDocuments produces one sparse vector per input text.
func (e *BM25Encoder) EncodeDocuments(texts []string) []vectorstore.SparseVector {
	out := make([]vectorstore.SparseVector, len(texts))
	for i, text := range texts {
		out[i] = e.encode(text, true)
	}
	return out
}

// EncodeQuery produces a sparse vector for a query. Query terms carry unit
// weights: relevance weighting happens on the index side.
func (e *BM25Encoder) EncodeQuery(text string) vectorstore.SparseVector {
	return e.encode(text, false)
}

func (e *BM25Encoder) encode(text string, saturate bool) vectorstore.SparseVector {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vectorstore.SparseVector{}
	}

	counts := make(map[uint32]float32)
	for _, tok := range tokens {
		counts[termID(tok)]++
	}

	docLen := float64(len(tokens))
	indices := make([]uint32, 0, len(counts))
	for id := range counts {
		indices = append(indices, id)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, id := range indices {
		if saturate {
			tf := float64(counts[id])
			values[i] = float32(tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*docLen/bm25AvgLength)))
		} else {
			values[i] = 1
		}
	}

	return vectorstore.SparseVector{Indices: indices, Values: values}
}

// tokenize lowercases and splits on non-alphanumeric runes, dropping
// stopwords and single-character tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, ok := stopwords[f]; ok {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// termID hashes a token into a stable sparse index.
func termID(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return h.Sum32()
}
