// Package citations parses inline bracketed source references out of
// generated answers into renderable text segments.
package citations

import "regexp"

// TextSegment is a span of answer text attributed to one source. A nil
// Source means the text carries no citation.
type TextSegment struct {
	Text   string  `json:"text"`
	Source *string `json:"source"`
}

// citationPattern matches "<text>[<url>]" with an optional "source:" label
// inside the brackets.
var citationPattern = regexp.MustCompile(`(?s)(.*?)\[(?:source:\s*)?(https?://[^\]]+)\]`)

// Parse splits answer into segments at bracketed source citations. Trailing
// text after the last citation becomes a final uncited segment, and an
// answer with no citations is returned whole as one uncited segment. The
// result is never empty: an empty answer yields a single empty segment.
// Adjacent segments with the same source are merged.
func Parse(answer string) []TextSegment {
	matches := citationPattern.FindAllStringSubmatchIndex(answer, -1)
	if len(matches) == 0 {
		return []TextSegment{{Text: answer, Source: nil}}
	}

	var segments []TextSegment
	end := 0
	for _, m := range matches {
		text := answer[m[2]:m[3]]
		source := answer[m[4]:m[5]]
		// Back-to-back citations leave nothing between the brackets.
		if text != "" {
			segments = append(segments, TextSegment{Text: text, Source: &source})
		}
		end = m[1]
	}
	if end < len(answer) {
		segments = append(segments, TextSegment{Text: answer[end:], Source: nil})
	}
	// A citation-only answer has no text to attribute. Return it raw rather
	// than empty.
	if len(segments) == 0 {
		segments = append(segments, TextSegment{Text: answer, Source: nil})
	}

	return mergeAdjacent(segments)
}

// mergeAdjacent concatenates consecutive segments sharing a source value.
// It is idempotent.
func mergeAdjacent(segments []TextSegment) []TextSegment {
	merged := segments[:0:0]
	for _, seg := range segments {
		if len(merged) > 0 && sameSource(merged[len(merged)-1].Source, seg.Source) {
			merged[len(merged)-1].Text += seg.Text
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}

func sameSource(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
