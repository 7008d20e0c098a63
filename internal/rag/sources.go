package rag

import (
	"context"
	"errors"

	"github.com/hyperjump/tanya/internal/models"
)

var errNoLedger = errors.New("no ingestion ledger configured")

// SourceDetail is one ingested source with its chunks in index order.
type SourceDetail struct {
	Source *models.Source        `json:"source"`
	Chunks []*models.StoredChunk `json:"chunks"`
}

// Sources lists ingested sources, newest first.
func (e *Engine) Sources(ctx context.Context, offset, limit int) ([]*models.Source, error) {
	if e.storage == nil {
		return nil, errNoLedger
	}
	return e.storage.ListSources(ctx, offset, limit)
}

// Source returns the source with the given ID and its chunks.
func (e *Engine) Source(ctx context.Context, id string) (*SourceDetail, error) {
	if e.storage == nil {
		return nil, errNoLedger
	}
	src, err := e.storage.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	chunks, err := e.storage.GetChunksBySourceID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SourceDetail{Source: src, Chunks: chunks}, nil
}
