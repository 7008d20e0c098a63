package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/tanya/internal/completion"
	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/extract"
	"github.com/hyperjump/tanya/internal/indexer"
	"github.com/hyperjump/tanya/internal/storage"
	"github.com/hyperjump/tanya/internal/vector"
	"github.com/hyperjump/tanya/internal/web"
	"go.uber.org/zap"
)

// Open builds an engine from cfg: it opens the ingestion ledger, creates the embedder, completer and
// vector index, and loads the index snapshot if one exists. A corrupt snapshot is an error.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	emb, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	index, err := vector.Open(cfg.Vector.IndexType, emb.Dimensions(), cfg.Storage.VectorIndexPath)
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	closeAll := func() {
		_ = index.Close()
		_ = emb.Close()
		_ = store.Close()
	}
	completer, err := completion.New(cfg.Completion, logger)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("create completer: %w", err)
	}

	fetcher := web.NewFetcher(web.FetcherConfig{
		Timeout:      time.Duration(cfg.Web.TimeoutSecs) * time.Second,
		UserAgent:    cfg.Web.UserAgent,
		MaxBodyBytes: cfg.Web.MaxBodyBytes,
		MaxPageChars: cfg.Web.MaxPageChars,
	}, nil)
	crawler := web.NewCrawler(fetcher, cfg.Web.MaxPages, cfg.Web.MaxCrawlChars,
		web.WithCrawlLogger(logger.Named("crawler")),
		web.WithRequestsPerSecond(cfg.Web.RequestsPerSecond),
	)
	idx := indexer.NewIndexer(store, emb, index,
		indexer.NewChunker(cfg.Chunking.MaxTokens, cfg.Chunking.Overlap),
		extract.NewExtractor(),
		indexer.WithLogger(logger.Named("indexer")),
		indexer.WithSnapshot(cfg.Storage.VectorIndexPath, cfg.Retrieval.PersistOnIngestOrDefault()),
	)
	if _, err := idx.Reconcile(ctx); err != nil {
		closeAll()
		return nil, fmt.Errorf("realign ledger with index: %w", err)
	}

	logger.Info("engine ready",
		zap.String("index_type", index.Type()),
		zap.Int("index_size", index.Size()),
		zap.Int("dimensions", emb.Dimensions()),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()),
	)
	return NewEngine(idx, index, emb, completer, fetcher, crawler, store, Config{
		TopK:            cfg.Retrieval.TopK,
		MaxTopK:         cfg.Retrieval.MaxTopK,
		Temperature:     cfg.Completion.Temperature,
		MaxTokens:       cfg.Completion.MaxTokens,
		DatabasePath:    cfg.Storage.DatabasePath,
		VectorIndexPath: cfg.Storage.VectorIndexPath,
	}, WithLogger(logger.Named("rag"))), nil
}
