// Package fileid derives identifiers for ingested sources: content hashes for deduplication,
// random source IDs, and stable locators for local files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	hashPrefix = "sha256:"
	filePrefix = "file://"
)

// ContentHash returns a stable hash of text. Identical text always yields the same hash.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hashPrefix + hex.EncodeToString(sum[:])
}

// NewSourceID returns a fresh random source ID.
func NewSourceID() string {
	return uuid.New().String()
}

// FileLocator returns the locator recorded for a local file: its cleaned path with a file:// prefix.
func FileLocator(absolutePath string) string {
	return filePrefix + filepath.ToSlash(filepath.Clean(absolutePath))
}
