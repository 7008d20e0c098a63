// Package storage defines the ingestion ledger: which sources were ingested and where their chunks sit in the index.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/tanya/internal/models"
)

// ErrNotFound is returned when a source does not exist.
var ErrNotFound = errors.New("not found")

// Storage records ingested sources and their chunks.
type Storage interface {
	// RecordIngestion stores src and its chunks atomically.
	RecordIngestion(ctx context.Context, src *models.Source, chunks []*models.StoredChunk) error
	GetSource(ctx context.Context, id string) (*models.Source, error)
	// FindSourceByHash returns the earliest source with the given content hash, or ErrNotFound.
	FindSourceByHash(ctx context.Context, hash string) (*models.Source, error)
	ListSources(ctx context.Context, offset, limit int) ([]*models.Source, error)
	GetChunksBySourceID(ctx context.Context, sourceID string) ([]*models.StoredChunk, error)

	// PruneFrom deletes sources with any chunk at a position >= size, returning how many were removed.
	// It realigns the ledger with an index that lost entries.
	PruneFrom(ctx context.Context, size int) (int64, error)

	CountSources(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
