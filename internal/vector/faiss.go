//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"unsafe"
)

// FAISSIndex is an exact L2 index backed by a FAISS IndexFlatL2. Chunk texts are kept alongside
// in insertion order; FAISS labels are entry positions.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	chunks     []string
	mu         sync.RWMutex
}

// NewFAISSIndex creates an empty FAISS IndexFlatL2 with the given dimension.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	var index *C.FaissIndex
	if ret := C.faiss_IndexFlatL2_new_with(&index, C.idx_t(dimensions)); ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	return &FAISSIndex{
		index:      index,
		dimensions: dimensions,
		chunks:     make([]string, 0),
	}, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Add appends vectors with their chunk texts.
func (f *FAISSIndex) Add(ctx context.Context, vectors [][]float32, chunks []string) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: %d vectors, %d chunks", ErrLengthMismatch, len(vectors), len(chunks))
	}
	if len(vectors) == 0 {
		return nil
	}
	n := len(vectors)
	flat := make([]float32, n*f.dimensions)
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("%w: vector %d has %d, expected %d", ErrDimensionMismatch, i, len(vec), f.dimensions)
		}
		copy(flat[i*f.dimensions:(i+1)*f.dimensions], vec)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	ret := C.faiss_Index_add(f.index, C.idx_t(n), (*C.float)(unsafe.Pointer(&flat[0])))
	if ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

// Search returns the k nearest chunks by L2 distance, nearest first, ties by insertion order.
// FAISS does not order equal distances by label, so the candidate window grows until every
// entry tied with the k-th distance is inside it.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	ntotal := int(C.faiss_Index_ntotal(f.index))
	if k <= 0 || ntotal == 0 {
		return []Result{}, nil
	}
	if k > ntotal {
		k = ntotal
	}

	window := k
	var distances []float32
	var labels []int64
	for {
		var err error
		distances, labels, err = f.search(query, window)
		if err != nil {
			return nil, err
		}
		if window == ntotal || distances[window-1] != distances[k-1] {
			break
		}
		window = min(window*2, ntotal)
	}

	results := make([]Result, 0, window)
	squared := make([]float32, 0, window)
	for i := range labels {
		label := int(labels[i])
		if label < 0 || label >= len(f.chunks) {
			continue
		}
		results = append(results, Result{Position: label, Text: f.chunks[label]})
		squared = append(squared, distances[i])
	}
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := order[a], order[b]
		if squared[ra] != squared[rb] {
			return squared[ra] < squared[rb]
		}
		return results[ra].Position < results[rb].Position
	})
	out := make([]Result, 0, k)
	for _, i := range order[:min(k, len(order))] {
		r := results[i]
		// IndexFlatL2 reports squared distances.
		r.Distance = float32(math.Sqrt(float64(squared[i])))
		out = append(out, r)
	}
	return out, nil
}

func (f *FAISSIndex) search(query []float32, n int) ([]float32, []int64, error) {
	distances := make([]float32, n)
	labels := make([]int64, n)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(n),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}
	return distances, labels, nil
}

// Save persists the index as <path>.faiss and <path>.chunks.json.
func (f *FAISSIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	target := FAISSPath(path)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()

	cPath := C.CString(tmpName)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", target, err)
	}
	return writeChunks(ChunksPath(path), f.chunks)
}

// Load replaces the contents with the snapshot at path. If neither file exists the index is unchanged.
func (f *FAISSIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	faissPath := FAISSPath(path)
	ok, err := snapshotState(faissPath, ChunksPath(path))
	if err != nil || !ok {
		return err
	}
	chunks, err := readChunks(ChunksPath(path))
	if err != nil {
		return err
	}

	cPath := C.CString(faissPath)
	defer C.free(unsafe.Pointer(cPath))
	var loaded *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &loaded); ret != 0 {
		return fmt.Errorf("%w: read %s: %s", ErrCorruptSnapshot, faissPath, faissLastError())
	}
	if d := int(C.faiss_Index_d(loaded)); d != f.dimensions {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("%w: file has dimension %d, index expects %d", ErrCorruptSnapshot, d, f.dimensions)
	}
	if n := int(C.faiss_Index_ntotal(loaded)); n != len(chunks) {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("%w: %d vectors, %d chunks", ErrCorruptSnapshot, n, len(chunks))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
	}
	f.index = loaded
	f.chunks = chunks
	return nil
}

// Size returns the number of entries in the index.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.chunks)
}

// Dimensions returns the vector dimension.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
