package vector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

const (
	vectorsSuffix = ".vectors"
	chunksSuffix  = ".chunks.json"
	faissSuffix   = ".faiss"
)

// VectorsPath returns the file holding the raw vectors of the snapshot at path.
func VectorsPath(path string) string { return path + vectorsSuffix }

// ChunksPath returns the file holding the ordered chunk texts of the snapshot at path.
func ChunksPath(path string) string { return path + chunksSuffix }

// FAISSPath returns the file holding the serialized FAISS index of the snapshot at path.
func FAISSPath(path string) string { return path + faissSuffix }

type chunkFile struct {
	Count  int      `json:"count"`
	Chunks []string `json:"chunks"`
}

// snapshotState reports which of the two snapshot files exist.
// It returns (false, nil) when both are missing and ErrCorruptSnapshot when only one exists.
func snapshotState(dataPath, chunksPath string) (bool, error) {
	dataOK, err := fileExists(dataPath)
	if err != nil {
		return false, err
	}
	chunksOK, err := fileExists(chunksPath)
	if err != nil {
		return false, err
	}
	switch {
	case !dataOK && !chunksOK:
		return false, nil
	case !dataOK:
		return false, fmt.Errorf("%w: %s exists without %s", ErrCorruptSnapshot, chunksPath, dataPath)
	case !chunksOK:
		return false, fmt.Errorf("%w: %s exists without %s", ErrCorruptSnapshot, dataPath, chunksPath)
	}
	return true, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// writeFileAtomic writes via a temp file in the target directory and renames it into place.
func writeFileAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func writeChunks(path string, chunks []string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		if err := json.NewEncoder(w).Encode(chunkFile{Count: len(chunks), Chunks: chunks}); err != nil {
			return fmt.Errorf("encode chunks: %w", err)
		}
		return nil
	})
}

func readChunks(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	var cf chunkFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorruptSnapshot, path, err)
	}
	if cf.Count != len(cf.Chunks) {
		return nil, fmt.Errorf("%w: %s declares %d chunks, has %d", ErrCorruptSnapshot, path, cf.Count, len(cf.Chunks))
	}
	if cf.Chunks == nil {
		cf.Chunks = []string{}
	}
	return cf.Chunks, nil
}

// writeVectors writes dimension (4), count (4), then count*dimension little-endian float32 values.
func writeVectors(path string, dimensions int, vectors [][]float32) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		if err := binary.Write(w, binary.LittleEndian, uint32(dimensions)); err != nil {
			return fmt.Errorf("write dimensions: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(vectors))); err != nil {
			return fmt.Errorf("write count: %w", err)
		}
		for _, vec := range vectors {
			if _, err := w.Write(float32SliceToBytes(vec)); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
		return nil
	})
}

func readVectors(path string, dimensions int) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vectors: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("%w: read dimensions: %v", ErrCorruptSnapshot, err)
	}
	if int(dim) != dimensions {
		return nil, fmt.Errorf("%w: file has dimension %d, index expects %d", ErrCorruptSnapshot, dim, dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: read count: %v", ErrCorruptSnapshot, err)
	}
	if info, err := f.Stat(); err == nil {
		want := int64(8) + int64(n)*int64(dimensions)*4
		if info.Size() != want {
			return nil, fmt.Errorf("%w: %s is %d bytes, want %d", ErrCorruptSnapshot, path, info.Size(), want)
		}
	}
	vectors := make([][]float32, 0, n)
	buf := make([]byte, dimensions*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: read vector %d: %v", ErrCorruptSnapshot, i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	return vectors, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
