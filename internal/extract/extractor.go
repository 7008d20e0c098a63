// Package extract turns uploaded documents and HTML into plain text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrUnsupportedType is returned for a type hint with no extractor.
	ErrUnsupportedType = errors.New("unsupported document type")
	// ErrInvalidEncoding is returned when plain text is not valid UTF-8.
	ErrInvalidEncoding = errors.New("invalid text encoding")
	// ErrMalformedDocument is returned when a document of a supported type cannot be parsed.
	ErrMalformedDocument = errors.New("malformed document")
)

type extractFunc func(content []byte) (string, error)

var extractors = map[string]extractFunc{
	"pdf":      extractPDF,
	"docx":     extractDOCX,
	"xlsx":     extractExcel,
	"pptx":     extractPPTX,
	"txt":      extractPlain,
	"text":     extractPlain,
	"md":       extractPlain,
	"markdown": extractPlain,
	"html":     extractHTMLText,
	"htm":      extractHTMLText,
}

// Extractor extracts plain text from document bytes based on a type hint.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and extracts its text using the file extension as the hint.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content. hint is an extension with or without the leading dot
// ("pdf", ".docx") and is matched case-insensitively. Unknown hints fail with ErrUnsupportedType.
func (e *Extractor) ExtractBytes(content []byte, hint string) (string, error) {
	kind := NormalizeHint(hint)
	fn, ok := extractors[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, hint)
	}
	return fn(content)
}

// Supports reports whether hint names a supported type.
func (e *Extractor) Supports(hint string) bool {
	_, ok := extractors[NormalizeHint(hint)]
	return ok
}

// NormalizeHint lowercases hint and strips surrounding space and a leading dot.
func NormalizeHint(hint string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hint)), ".")
}

// SupportedTypes returns the supported type hints, sorted.
func SupportedTypes() []string {
	out := make([]string, 0, len(extractors))
	for k := range extractors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
