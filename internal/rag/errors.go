package rag

import (
	"context"
	"errors"

	"github.com/hyperjump/tanya/internal/completion"
	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/extract"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/vector"
	"github.com/hyperjump/tanya/internal/web"
)

// ErrorKind is the category of a failed operation, used by callers to pick a response.
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "invalid_input"
	KindDependencyFailure ErrorKind = "dependency_failure"
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindCorruptIndex      ErrorKind = "corrupt_index"
	KindInternal          ErrorKind = "internal"
)

// ErrInvalidInput marks a malformed request.
var ErrInvalidInput = models.ErrInvalidInput

// Classify maps err to its kind. A nil error has no kind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, embedding.ErrEmbedding),
		errors.Is(err, completion.ErrCompletion),
		errors.Is(err, web.ErrFetch),
		errors.Is(err, web.ErrCrawlFailed),
		errors.Is(err, context.DeadlineExceeded):
		return KindDependencyFailure
	case errors.Is(err, extract.ErrUnsupportedType),
		errors.Is(err, extract.ErrInvalidEncoding),
		errors.Is(err, extract.ErrMalformedDocument):
		return KindUnsupportedFormat
	case errors.Is(err, vector.ErrCorruptSnapshot),
		errors.Is(err, vector.ErrLengthMismatch),
		errors.Is(err, vector.ErrDimensionMismatch):
		return KindCorruptIndex
	default:
		return KindInternal
	}
}
