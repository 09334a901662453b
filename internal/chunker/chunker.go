// Package chunker splits raw documents into bounded, overlapping text
// chunks suitable for indexing.
//
// Splitting tries separators in priority order (paragraph break, line break,
// sentence period, space) and falls back to a fixed-stride hard split when no
// separator applies. The splitter never fails on well-formed input; it
// degrades to hard-splitting instead.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidOverlap is returned when overlap >= chunk size, which would
// prevent the hard-split fallback from advancing.
var ErrInvalidOverlap = errors.New("overlap must be smaller than chunk size")

// separators in priority order. The trailing empty string means hard
// character split.
var separators = []string{"\n\n", "\n", ".", " ", ""}

// SourceDocument is a raw document paired with its source identifier.
type SourceDocument struct {
	Text   string
	Source string
}

// Chunk is a bounded substring of a source document, the unit of indexing.
type Chunk struct {
	Text     string
	Metadata map[string]any
}

// Split splits documents into chunks of at most chunkSize characters.
// Each chunk carries metadata {"source": <source identifier>}.
func Split(docs []SourceDocument, chunkSize, overlap int) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk_size=%d overlap=%d", ErrInvalidOverlap, chunkSize, overlap)
	}

	var chunks []Chunk
	for _, doc := range docs {
		for _, piece := range recursiveSplit(doc.Text, chunkSize, overlap, separators) {
			chunks = append(chunks, Chunk{
				Text:     piece,
				Metadata: map[string]any{"source": doc.Source},
			})
		}
	}
	return chunks, nil
}

// recursiveSplit splits text on the first separator present in it,
// reassembles the parts into runs no longer than chunkSize, and re-splits
// any still-oversized run with the remaining lower-priority separators.
func recursiveSplit(text string, chunkSize, overlap int, seps []string) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}

	for i, sep := range seps {
		if sep == "" || !strings.Contains(text, sep) {
			continue
		}

		parts := strings.Split(text, sep)
		var runs []string
		current := ""
		for _, part := range parts {
			if current != "" && len(current)+len(part)+len(sep) > chunkSize {
				runs = append(runs, strings.TrimSpace(current))
				current = ""
			}
			if current != "" {
				current += sep
			}
			current += part
		}
		if current != "" {
			runs = append(runs, strings.TrimSpace(current))
		}

		var result []string
		for _, run := range runs {
			if len(run) > chunkSize {
				result = append(result, recursiveSplit(run, chunkSize, overlap, seps[i+1:])...)
			} else {
				result = append(result, run)
			}
		}
		return result
	}

	return hardSplit(text, chunkSize, overlap)
}

// hardSplit slices text into chunkSize windows advancing chunkSize-overlap
// per step. The caller guarantees overlap < chunkSize, so the stride is
// always positive.
func hardSplit(text string, chunkSize, overlap int) []string {
	stride := chunkSize - overlap
	var out []string
	for i := 0; i < len(text); i += stride {
		end := i + chunkSize
		if end > len(text) {
			end = len(text)
		}
		out = append(out, text[i:end])
		if end == len(text) {
			break
		}
	}
	return out
}
