package rag

import (
	"context"

	"github.com/hyperjump/tanya/internal/storage"
	"github.com/hyperjump/tanya/internal/vector"
	"go.uber.org/zap"
)

// Status summarizes what has been ingested and how the index is configured.
type Status struct {
	Sources         int64               `json:"sources"`
	Chunks          int64               `json:"chunks"`
	IndexSize       int                 `json:"vector_index_size"`
	IndexType       string              `json:"vector_index_type"`
	Dimensions      int                 `json:"embedding_dimensions"`
	ChunkMaxTokens  int                 `json:"chunk_max_tokens"`
	ChunkOverlap    int                 `json:"chunk_overlap"`
	TopK            int                 `json:"top_k"`
	DiskUsageBytes  int64               `json:"disk_usage_bytes"`
	DiskUsage       []storage.PathUsage `json:"disk_usage,omitempty"`
	DatabasePath    string              `json:"database_path,omitempty"`
	VectorIndexPath string              `json:"vector_index_path,omitempty"`
}

// Status reports ledger counts, index size and settings.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		IndexSize:       e.index.Size(),
		IndexType:       e.index.Type(),
		Dimensions:      e.index.Dimensions(),
		ChunkMaxTokens:  e.indexer.Chunker().MaxTokens(),
		ChunkOverlap:    e.indexer.Chunker().Overlap(),
		TopK:            e.config.TopK,
		DatabasePath:    e.config.DatabasePath,
		VectorIndexPath: e.config.VectorIndexPath,
	}
	if e.storage != nil {
		var err error
		if st.Sources, err = e.storage.CountSources(ctx); err != nil {
			return nil, err
		}
		if st.Chunks, err = e.storage.CountChunks(ctx); err != nil {
			return nil, err
		}
	}
	paths := storage.LedgerFiles(e.config.DatabasePath)
	if e.config.VectorIndexPath != "" {
		paths = append(paths,
			vector.VectorsPath(e.config.VectorIndexPath),
			vector.ChunksPath(e.config.VectorIndexPath),
			vector.FAISSPath(e.config.VectorIndexPath),
		)
	}
	if usage, total, err := storage.DiskUsage(paths...); err == nil {
		st.DiskUsage = usage
		st.DiskUsageBytes = total
	} else {
		e.logger.Warn("disk usage unavailable", zap.Error(err))
	}
	return st, nil
}
