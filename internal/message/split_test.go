package message

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

func TestSplitFitsSingleChunk(t *testing.T) {
	t.Parallel()
	chunks, err := Split("hi", 160, false)
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Index != 1 || c.Total != 1 || c.Text != "hi" {
		t.Fatalf("unexpected chunk: %+v", c)
	}
	if c.Rendered() != "hi" {
		t.Fatalf("Rendered() = %q, want plain text for a single chunk", c.Rendered())
	}
}

func TestSplitDisallowedFails(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("x", 200)
	_, err := Split(body, 160, false)
	var tl *TooLongError
	if !errors.As(err, &tl) {
		t.Fatalf("expected TooLongError, got %v", err)
	}
	if tl.Length != 200 || tl.Max != 160 {
		t.Fatalf("unexpected TooLongError: %+v", tl)
	}
}

func TestSplitNumbersAndLimits(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("word ", 60) // 300 chars
	chunks, err := Split(body, 160, true)
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i+1 {
			t.Fatalf("chunk %d has Index %d", i, c.Index)
		}
		if c.Total != len(chunks) {
			t.Fatalf("chunk %d has Total %d, want %d", i, c.Total, len(chunks))
		}
		if n := len([]rune(c.Rendered())); n > 160 {
			t.Fatalf("chunk %d rendered length %d exceeds limit", i, n)
		}
		if !strings.HasSuffix(c.Rendered(), "/"+strconv.Itoa(len(chunks))+")") {
			t.Fatalf("chunk %d rendered %q missing part indicator", i, c.Rendered())
		}
	}
}

func TestSplitPrefersWhitespaceBoundaries(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("alpha beta gamma ", 20)
	chunks, err := Split(body, 60, true)
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	for i, c := range chunks {
		if strings.HasPrefix(c.Text, " ") {
			t.Fatalf("chunk %d starts with the separator: %q", i, c.Text)
		}
		// Boundary fell on whitespace, so no word is cut in half.
		for _, w := range strings.Fields(c.Text) {
			switch w {
			case "alpha", "beta", "gamma":
			default:
				t.Fatalf("chunk %d contains split word %q", i, w)
			}
		}
	}
}

func TestSplitHardCutWithoutWhitespace(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("x", 500)
	chunks, err := Split(body, 160, true)
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	var rejoined strings.Builder
	for _, c := range chunks {
		if n := len([]rune(c.Rendered())); n > 160 {
			t.Fatalf("rendered length %d exceeds limit", n)
		}
		rejoined.WriteString(c.Text)
	}
	if rejoined.String() != body {
		t.Fatalf("hard-cut chunks do not reconstruct the body")
	}
}

func TestSplitReconstructsBody(t *testing.T) {
	t.Parallel()
	body := "the quick brown fox jumps over the lazy dog " + strings.Repeat("again and again ", 15)
	chunks, err := Split(body, 80, true)
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	var rejoined strings.Builder
	for _, c := range chunks {
		rejoined.WriteString(c.Text)
		if strings.Contains(c.Rendered(), "  (") {
			t.Fatalf("rendered chunk carries the separator into the indicator: %q", c.Rendered())
		}
		if n := len([]rune(c.Rendered())); n > 80 {
			t.Fatalf("rendered length %d exceeds limit", n)
		}
	}
	if rejoined.String() != body {
		t.Fatalf("chunk texts do not reconstruct the body:\n got %q\nwant %q", rejoined.String(), body)
	}
}
