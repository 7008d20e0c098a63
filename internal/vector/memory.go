package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory index using brute-force exact L2 search.
// Corpora are single-tenant and small, so a full scan per query is acceptable.
type MemoryIndex struct {
	dimensions int
	vectors    [][]float32
	chunks     []string
	mu         sync.RWMutex
}

// NewMemoryIndex creates an empty in-memory index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
		chunks:     make([]string, 0),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Add appends vectors with their chunk texts. Every vector is validated before anything is appended.
func (m *MemoryIndex) Add(ctx context.Context, vectors [][]float32, chunks []string) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: %d vectors, %d chunks", ErrLengthMismatch, len(vectors), len(chunks))
	}
	if len(vectors) == 0 {
		return nil
	}
	copied := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != m.dimensions {
			return fmt.Errorf("%w: vector %d has %d, expected %d", ErrDimensionMismatch, i, len(v), m.dimensions)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, v)
		copied[i] = vec
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors = append(m.vectors, copied...)
	m.chunks = append(m.chunks, chunks...)
	return nil
}

// Search returns the k nearest chunks by exact L2 distance, nearest first.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.vectors) == 0 {
		return []Result{}, nil
	}
	type scored struct {
		pos  int
		dist float32
	}
	scores := make([]scored, len(m.vectors))
	for i, vec := range m.vectors {
		scores[i] = scored{pos: i, dist: SquaredL2(query, vec)}
	}
	// Stable sort keeps insertion order among equal distances.
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].dist < scores[j].dist })
	if k > len(scores) {
		k = len(scores)
	}
	results := make([]Result, k)
	for i := 0; i < k; i++ {
		s := scores[i]
		results[i] = Result{
			Position: s.pos,
			Text:     m.chunks[s.pos],
			Distance: float32(math.Sqrt(float64(s.dist))),
		}
	}
	return results, nil
}

// Save persists the index as <path>.vectors and <path>.chunks.json.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := writeVectors(VectorsPath(path), m.dimensions, m.vectors); err != nil {
		return err
	}
	return writeChunks(ChunksPath(path), m.chunks)
}

// Load replaces the contents with the snapshot at path. If neither file exists the index is unchanged.
// The in-memory state is only replaced when both files decode and agree.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	ok, err := snapshotState(VectorsPath(path), ChunksPath(path))
	if err != nil || !ok {
		return err
	}
	vectors, err := readVectors(VectorsPath(path), m.dimensions)
	if err != nil {
		return err
	}
	chunks, err := readChunks(ChunksPath(path))
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: %d vectors, %d chunks", ErrCorruptSnapshot, len(vectors), len(chunks))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors = vectors
	m.chunks = chunks
	return nil
}

// Size returns the number of entries in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
