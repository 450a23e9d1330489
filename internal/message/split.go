// Package message splits a body into carrier-length-limited chunks.
package message

import (
	"fmt"
	"strings"
	"unicode"
)

// Chunk is one sendable segment of a longer message. Index is 1-based.
// Text is the raw body slice, separator whitespace included, so joining
// the Text fields of a split reproduces the body exactly; Rendered appends
// the part indicator that actually goes over the wire.
type Chunk struct {
	Index int
	Total int
	Text  string
}

// Rendered returns the text as submitted to the carrier, with a " (i/n)"
// part indicator when the message was split. Trailing separator whitespace
// is not sent.
func (c Chunk) Rendered() string {
	if c.Total <= 1 {
		return c.Text
	}
	return fmt.Sprintf("%s (%d/%d)", strings.TrimRightFunc(c.Text, unicode.IsSpace), c.Index, c.Total)
}

// TooLongError reports a body that exceeds the carrier limit while
// splitting is disallowed.
type TooLongError struct {
	Length int
	Max    int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("message is %d chars, carrier limit is %d and splitting is disabled", e.Length, e.Max)
}

// whitespace lookback window when choosing a split boundary. A hard cut is
// used when no whitespace exists this close to the limit.
const boundaryLookback = 20

// Split partitions body into chunks whose rendered text fits maxLen.
// Boundaries prefer whitespace near the limit; the separator stays at the
// end of the leading chunk, so concatenating the chunk texts reproduces
// the body byte for byte. Bodies that already fit come back as a single
// unsplit chunk.
func Split(body string, maxLen int, allowSplit bool) ([]Chunk, error) {
	runes := []rune(body)
	if len(runes) <= maxLen {
		return []Chunk{{Index: 1, Total: 1, Text: body}}, nil
	}
	if !allowSplit {
		return nil, &TooLongError{Length: len(runes), Max: maxLen}
	}

	// The part indicator steals capacity from every chunk, and its width
	// depends on how many chunks there are. Start assuming single-digit
	// counts and redo with a wider reserve if the count disagrees.
	var texts []string
	for d := 1; ; {
		limit := maxLen - indicatorWidth(d)
		if limit < 1 {
			return nil, fmt.Errorf("carrier limit %d too small to split into parts", maxLen)
		}
		texts = chunkTexts(runes, limit)
		if digits(len(texts)) <= d {
			break
		}
		d = digits(len(texts))
	}

	out := make([]Chunk, len(texts))
	for i, t := range texts {
		out[i] = Chunk{Index: i + 1, Total: len(texts), Text: t}
	}
	return out, nil
}

// chunkTexts slices runes into pieces of at most limit runes, preferring to
// break at whitespace within the lookback window.
func chunkTexts(runes []rune, limit int) []string {
	var out []string
	i := 0
	for i < len(runes) {
		if len(runes)-i <= limit {
			out = append(out, string(runes[i:]))
			break
		}
		end := i + limit
		lb := boundaryLookback
		if lb > limit {
			lb = limit
		}
		// Cut just past the separator so it stays with the leading
		// chunk and nothing is lost at the boundary.
		if idx := lastSpace(runes, end-lb, end); idx >= i {
			end = idx + 1
		}
		out = append(out, string(runes[i:end]))
		i = end
	}
	return out
}

// lastSpace returns the highest index in [from, to) holding whitespace,
// or -1. Bounds are clamped to the slice.
func lastSpace(runes []rune, from, to int) int {
	if from < 0 {
		from = 0
	}
	if to > len(runes) {
		to = len(runes)
	}
	for i := to - 1; i >= from; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// indicatorWidth is len(" (i/n)") with d-digit part numbers.
func indicatorWidth(d int) int { return 4 + 2*d }

func digits(n int) int {
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}
