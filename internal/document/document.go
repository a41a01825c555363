// Package document holds the loaded text and its derived, synthesis-ready
// form. Only one reversible transform exists (normalization), so undo is a
// two-slot history: original text plus the derived text, never a command
// stack.
package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/cunicopia-dev/local-tts-studio/internal/text"
)

var (
	// ErrEmptyInput is returned for files with no speakable content.
	ErrEmptyInput = errors.New("input text is empty")
	// ErrUnsupportedFormat is returned for inputs this tool does not
	// extract itself (PDF extraction is handled by an external loader).
	ErrUnsupportedFormat = errors.New("unsupported input format")
)

// Document pairs the immutable original text with its normalized form.
type Document struct {
	OriginalText   string
	NormalizedText string
	Log            []text.Substitution

	normalized bool
}

// Load reads a UTF-8 text file from disk.
func Load(path string) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text", ".md", "":
	case ".pdf":
		return nil, fmt.Errorf("%w: %s (extract the PDF to text first)", ErrUnsupportedFormat, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}
	return New(string(raw))
}

// New builds a document from already-loaded text.
func New(raw string) (*Document, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyInput
	}
	if !utf8.ValidString(raw) {
		return nil, errors.New("input text is not valid UTF-8")
	}
	return &Document{OriginalText: raw}, nil
}

// Normalize derives the synthesis-safe text. The original is never
// modified, so Revert can always recover it.
func (d *Document) Normalize() {
	clean, log := text.Normalize(d.OriginalText)
	d.NormalizedText = clean
	d.Log = log
	d.normalized = true
	logrus.WithField("substitutions", len(log)).Debug("document normalized")
}

// Revert discards the normalized text (undo). The next Normalize
// re-derives it from the untouched original.
func (d *Document) Revert() {
	d.NormalizedText = ""
	d.Log = nil
	d.normalized = false
}

// Text returns the text a session should synthesize: the normalized form
// when one has been derived, the original otherwise.
func (d *Document) Text() string {
	if d.normalized {
		return d.NormalizedText
	}
	return d.OriginalText
}

// Chunks splits the current text and verifies the reconstruction
// invariant. A violated invariant is a structural error and aborts before
// any synthesis starts.
func (d *Document) Chunks(maxChars int) ([]text.Chunk, error) {
	chunks, err := text.Split(d.Text(), maxChars)
	if err != nil {
		return nil, err
	}
	if !text.Reconstruct(d.Text(), chunks) {
		return nil, errors.New("chunk ranges do not reconstruct the source text")
	}
	return chunks, nil
}
