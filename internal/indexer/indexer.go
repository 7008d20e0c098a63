// Package indexer turns text into index entries: preprocess, chunk, embed, append to the vector index
// and record the ingestion in the ledger.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/extract"
	"github.com/hyperjump/tanya/internal/fileid"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/storage"
	"github.com/hyperjump/tanya/internal/vector"
	"go.uber.org/zap"
)

// Input is text to ingest together with where it came from.
type Input struct {
	Kind    models.SourceKind
	Locator string
	Title   string
	Text    string
}

// Indexer ingests text into the vector index. Ingestions are serialized so that the positions
// recorded in the ledger match the positions the index assigns.
type Indexer struct {
	storage   storage.Storage // optional; nil disables the ledger and deduplication
	embedder  embedding.Embedder
	index     vector.Index
	chunker   *Chunker
	extractor *extract.Extractor
	indexPath string
	persist   bool
	logger    *zap.Logger

	mu sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithSnapshot sets the index snapshot path. When persist is true the index is saved after every ingestion.
func WithSnapshot(path string, persist bool) IndexerOption {
	return func(idx *Indexer) {
		idx.indexPath = path
		idx.persist = persist
	}
}

// NewIndexer creates an indexer with the given dependencies.
// extractor may be nil; when nil, file ingestion treats all content as plain text.
func NewIndexer(
	store storage.Storage,
	embedder embedding.Embedder,
	index vector.Index,
	chunker *Chunker,
	extractor *extract.Extractor,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:   store,
		embedder:  embedder,
		index:     index,
		chunker:   chunker,
		extractor: extractor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Chunker returns the chunker used for ingestion.
func (idx *Indexer) Chunker() *Chunker {
	return idx.chunker
}

// Ingest chunks, embeds and indexes in.Text. Identical text that is already present in the index
// is not indexed again; the result then has Skipped set and refers to the earlier source.
// Nothing is added to the index when embedding fails.
func (idx *Indexer) Ingest(ctx context.Context, in Input) (*models.IngestResult, error) {
	text := Preprocess(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: no extractable text in %s", models.ErrInvalidInput, in.Locator)
	}
	hash := fileid.ContentHash(text)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if prev, ok := idx.findIndexed(ctx, hash); ok {
		idx.logger.Debug("indexer skipping already ingested content",
			zap.String("locator", in.Locator), zap.String("source_id", prev.ID))
		return &models.IngestResult{Source: prev, Chunks: prev.ChunkCount, Skipped: true}, nil
	}

	chunks := idx.chunker.Chunk(text)
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	first := idx.index.Size()
	if err := idx.index.Add(ctx, vectors, texts); err != nil {
		return nil, fmt.Errorf("failed to index vectors: %w", err)
	}
	src := &models.Source{
		ID:            fileid.NewSourceID(),
		Kind:          in.Kind,
		Locator:       in.Locator,
		Title:         in.Title,
		ContentHash:   hash,
		Chars:         utf8.RuneCountInString(text),
		FirstPosition: first,
		ChunkCount:    len(chunks),
	}
	if idx.storage != nil {
		stored := make([]*models.StoredChunk, len(chunks))
		for i, ch := range chunks {
			stored[i] = &models.StoredChunk{
				SourceID:   src.ID,
				Position:   first + i,
				ChunkIndex: ch.Index,
				Content:    ch.Text,
			}
		}
		if err := idx.storage.RecordIngestion(ctx, src, stored); err != nil {
			return nil, fmt.Errorf("failed to record ingestion: %w", err)
		}
	}
	// The entries are committed once Add and the ledger succeed; a failed snapshot is retried by
	// the next ingestion or by Persist at shutdown.
	if idx.persist {
		if err := idx.index.Save(idx.indexPath); err != nil {
			idx.logger.Warn("indexer snapshot save failed",
				zap.String("path", idx.indexPath), zap.Error(err))
		}
	}

	idx.logger.Info("indexer ingested source",
		zap.String("kind", string(in.Kind)),
		zap.String("locator", in.Locator),
		zap.Int("chunks", len(chunks)),
		zap.Int("first_position", first),
	)
	return &models.IngestResult{Source: src, Chunks: len(chunks)}, nil
}

// findIndexed reports whether content with hash is already in the index. A ledger record whose
// positions lie beyond the current index size (a lost snapshot) does not count.
func (idx *Indexer) findIndexed(ctx context.Context, hash string) (*models.Source, bool) {
	if idx.storage == nil {
		return nil, false
	}
	prev, err := idx.storage.FindSourceByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			idx.logger.Warn("indexer ledger lookup failed", zap.Error(err))
		}
		return nil, false
	}
	if prev.FirstPosition+prev.ChunkCount > idx.index.Size() {
		return nil, false
	}
	return prev, true
}

// Reconcile drops ledger records for chunks the index does not hold, as happens when the
// snapshot is older than the ledger. Returns the number of sources dropped.
func (idx *Indexer) Reconcile(ctx context.Context) (int64, error) {
	if idx.storage == nil {
		return 0, nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	size := idx.index.Size()
	ledgerChunks, err := idx.storage.CountChunks(ctx)
	if err != nil {
		return 0, err
	}
	if int64(size) >= ledgerChunks {
		return 0, nil
	}
	pruned, err := idx.storage.PruneFrom(ctx, size)
	if err != nil {
		return 0, err
	}
	idx.logger.Warn("vector index has fewer entries than the ingestion ledger; dropped ledger records past the index",
		zap.Int("index_size", size),
		zap.Int64("ledger_chunks", ledgerChunks),
		zap.Int64("sources_pruned", pruned),
	)
	return pruned, nil
}

// IngestFile extracts text from an uploaded document and ingests it. The extension of name is the type hint.
func (idx *Indexer) IngestFile(ctx context.Context, name string, content []byte) (*models.IngestResult, error) {
	text, err := idx.extractBytes(content, filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	return idx.Ingest(ctx, Input{
		Kind:    models.SourceFile,
		Locator: name,
		Title:   filepath.Base(name),
		Text:    text,
	})
}

// IngestPath reads a local file and ingests it. If allowedExts is non-empty, the file's extension
// must be in the list (case-insensitive).
func (idx *Indexer) IngestPath(ctx context.Context, path string, allowedExts []string) (*models.IngestResult, error) {
	idx.logger.Debug("indexer ingesting file", zap.String("path", path))
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("%w: extension %q not in allowed list", extract.ErrUnsupportedType, ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", models.ErrInvalidInput, absPath)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	text, err := idx.extractBytes(content, ext)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", absPath, err)
	}
	return idx.Ingest(ctx, Input{
		Kind:    models.SourceFile,
		Locator: fileid.FileLocator(absPath),
		Title:   filepath.Base(absPath),
		Text:    text,
	})
}

// IngestDirectory walks dir recursively and ingests each regular file whose extension is in
// allowedExts (all files when empty). Files without extractable text are skipped.
// Returns the number of files newly indexed and the first error encountered, if any.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%w: not a directory: %s", models.ErrInvalidInput, absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		res, ingestErr := idx.IngestPath(ctx, path, allowedExts)
		if ingestErr != nil {
			if errors.Is(ingestErr, models.ErrInvalidInput) {
				idx.logger.Warn("indexer skipping file", zap.String("path", path), zap.Error(ingestErr))
				return nil
			}
			return ingestErr
		}
		if !res.Skipped {
			n++
		}
		return nil
	})
	return n, err
}

// Persist saves the index snapshot. It is a no-op without a snapshot path.
func (idx *Indexer) Persist() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.index.Save(idx.indexPath)
}

func (idx *Indexer) extractBytes(content []byte, hint string) (string, error) {
	if idx.extractor != nil {
		return idx.extractor.ExtractBytes(content, hint)
	}
	if !utf8.Valid(content) {
		return "", extract.ErrInvalidEncoding
	}
	return string(content), nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
