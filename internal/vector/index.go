// Package vector provides the chunk vector index and nearest-neighbor search.
package vector

import (
	"context"
	"errors"
)

var (
	// ErrLengthMismatch is returned by Add when the vector and chunk counts differ.
	ErrLengthMismatch = errors.New("vectors and chunks length mismatch")
	// ErrDimensionMismatch is returned when a vector does not have the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrCorruptSnapshot is returned by Load when the persisted files are incomplete or disagree.
	ErrCorruptSnapshot = errors.New("corrupt index snapshot")
)

// Index stores (vector, chunk text) entries in insertion order and answers exact L2 nearest-neighbor queries.
// Entry position is the identity of an entry. Entries are only ever appended.
// Implementations are safe for concurrent use: Add and Load are exclusive, Search and Save are shared.
type Index interface {
	// Add appends vectors and their chunk texts. It is all-or-nothing: on error the index is unchanged.
	Add(ctx context.Context, vectors [][]float32, chunks []string) error
	// Search returns up to k entries nearest to query, nearest first, ties broken by insertion order.
	// An empty index yields an empty slice.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	// Save writes the snapshot files for path. An empty path is a no-op.
	Save(path string) error
	// Load replaces the contents with the snapshot at path. Missing snapshot files leave the index unchanged.
	Load(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// Result is a single search hit.
type Result struct {
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Distance float32 `json:"distance"`
}
