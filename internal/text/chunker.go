package text

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrInvalidChunkSize is returned when the configured limit is not a
	// positive integer.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
)

// Chunk is a contiguous slice of normalized text. Start and End are rune
// offsets into the source text; the ranges of consecutive chunks partition
// the text with no gaps and no overlaps, so concatenating the ranges in
// index order reconstructs the source exactly. Text is the range with
// boundary whitespace trimmed off, which is what gets synthesized.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

// Split breaks clean text into ordered chunks of at most maxChars speakable
// characters. Boundaries prefer the nearest preceding sentence end
// (terminal punctuation followed by whitespace) inside the window, fall
// back to a word boundary, and never land inside a word. A single token
// longer than maxChars becomes its own oversized chunk; text is never
// dropped or truncated.
func Split(clean string, maxChars int) ([]Chunk, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, maxChars)
	}
	runes := []rune(clean)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	var chunks []Chunk
	pos := 0
	start := 0
	for pos < n {
		cut := findCut(runes, pos, maxChars)
		trimmed := strings.TrimSpace(string(runes[start:cut]))
		switch {
		case trimmed != "":
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Text:  trimmed,
				Start: start,
				End:   cut,
			})
			start = cut
		case len(chunks) > 0:
			// Trailing or interior whitespace-only ranges fold into the
			// previous chunk so every slot downstream carries speakable
			// text.
			chunks[len(chunks)-1].End = cut
			start = cut
		default:
			// A leading whitespace-only range folds forward into the first
			// real chunk by leaving start behind.
		}
		pos = cut
	}
	// Whitespace-only input produces no chunks at all.
	return chunks, nil
}

// findCut returns the exclusive end offset of the chunk starting at pos.
func findCut(runes []rune, pos, maxChars int) int {
	n := len(runes)
	end := pos + maxChars
	if end >= n {
		return n
	}

	// Sentence boundary: terminal punctuation at i-1, whitespace at i.
	// The cut keeps the punctuation and pushes the whitespace into the
	// next chunk's range.
	for i := end; i > pos+1; i-- {
		if unicode.IsSpace(runes[i]) && isTerminal(runes[i-1]) {
			return i
		}
	}

	// Word boundary.
	for i := end; i > pos; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}

	// One over-length token: extend to the end of the word rather than
	// splitting inside it.
	i := end
	for i < n && !unicode.IsSpace(runes[i]) {
		i++
	}
	return i
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', ':', ';':
		return true
	}
	return false
}

// Reconstruct concatenates chunk ranges in index order. Used to verify the
// partition invariant before a synthesis session starts.
func Reconstruct(clean string, chunks []Chunk) bool {
	runes := []rune(clean)
	next := 0
	var b strings.Builder
	for i, c := range chunks {
		if c.Index != i || c.Start != next || c.End < c.Start || c.End > len(runes) {
			return false
		}
		b.WriteString(string(runes[c.Start:c.End]))
		next = c.End
	}
	return next == len(runes) && b.String() == clean
}
