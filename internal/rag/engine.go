// Package rag answers questions with retrieved context: it ties ingestion, retrieval, page fetching
// and chat completion together.
package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/tanya/internal/completion"
	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/indexer"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/storage"
	"github.com/hyperjump/tanya/internal/vector"
	"github.com/hyperjump/tanya/internal/web"
	"go.uber.org/zap"
)

// Config holds query-time settings.
type Config struct {
	TopK        int
	MaxTopK     int
	Temperature float32
	MaxTokens   int
	// Paths are reported in Status disk usage.
	DatabasePath    string
	VectorIndexPath string
}

// Engine runs ingestion and retrieval-augmented chat.
type Engine struct {
	indexer   *indexer.Indexer
	index     vector.Index
	embedder  embedding.Embedder
	completer completion.Completer
	fetcher   *web.Fetcher
	crawler   *web.Crawler
	storage   storage.Storage
	config    Config
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine with the given dependencies. storage may be nil.
func NewEngine(
	idx *indexer.Indexer,
	index vector.Index,
	embedder embedding.Embedder,
	completer completion.Completer,
	fetcher *web.Fetcher,
	crawler *web.Crawler,
	store storage.Storage,
	cfg Config,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		indexer:   idx,
		index:     index,
		embedder:  embedder,
		completer: completer,
		fetcher:   fetcher,
		crawler:   crawler,
		storage:   store,
		config:    cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Indexer returns the engine's indexer.
func (e *Engine) Indexer() *indexer.Indexer {
	return e.indexer
}

// IngestText ingests pasted text. title is optional.
func (e *Engine) IngestText(ctx context.Context, title, text string) (*models.IngestResult, error) {
	locator := "text"
	if title != "" {
		locator = "text:" + title
	}
	return e.indexer.Ingest(ctx, indexer.Input{Kind: models.SourceText, Locator: locator, Title: title, Text: text})
}

// IngestFile ingests an uploaded document; the extension of name selects the extractor.
func (e *Engine) IngestFile(ctx context.Context, name string, content []byte) (*models.IngestResult, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: file name is required", models.ErrInvalidInput)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: file %s is empty", models.ErrInvalidInput, name)
	}
	return e.indexer.IngestFile(ctx, name, content)
}

// IngestURL ingests one page, or a same-origin crawl starting at it.
func (e *Engine) IngestURL(ctx context.Context, req *models.IngestURLRequest) (*models.IngestResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !req.Crawl {
		page, err := e.fetcher.FetchText(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		return e.indexer.Ingest(ctx, indexer.Input{Kind: models.SourceURL, Locator: page.URL, Title: page.Title, Text: page.Text})
	}
	report, err := e.crawler.Crawl(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	res, err := e.indexer.Ingest(ctx, indexer.Input{Kind: models.SourceSite, Locator: req.URL, Text: report.Text})
	if err != nil {
		return nil, err
	}
	res.Pages = pageStatuses(report)
	return res, nil
}

// Retrieve returns the k chunks nearest to query, nearest first.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) ([]models.RetrievedChunk, error) {
	if e.index.Size() == 0 {
		return []models.RetrievedChunk{}, nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := e.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	out := make([]models.RetrievedChunk, len(hits))
	for i, h := range hits {
		out[i] = models.RetrievedChunk{Position: h.Position, Text: h.Text, Distance: h.Distance}
	}
	return out, nil
}

// Search runs retrieval only, without calling the completion endpoint.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	started := time.Now()
	if err := req.Validate(e.config.TopK, e.config.MaxTopK); err != nil {
		return nil, err
	}
	results, err := e.Retrieve(ctx, req.Query, req.TopK)
	if err != nil {
		return nil, err
	}
	return &models.SearchResponse{
		Query:     req.Query,
		Results:   results,
		QueryTime: time.Since(started).Milliseconds(),
	}, nil
}

// Ask answers req.Message. With a URL the page (or a crawl of its site) is the context; otherwise the
// top-k indexed chunks are. An empty index means the question is asked without context.
func (e *Engine) Ask(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	if err := req.Validate(e.config.TopK, e.config.MaxTopK); err != nil {
		return nil, err
	}
	resp := &models.ChatResponse{Source: models.ContextNone}
	var contextTexts []string

	switch {
	case req.URL != "" && req.Crawl:
		report, err := e.crawler.Crawl(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		resp.Source = models.ContextSite
		resp.Pages = pageStatuses(report)
		contextTexts = []string{report.Text}
	case req.URL != "":
		page, err := e.fetcher.FetchText(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		resp.Source = models.ContextPage
		resp.Pages = []models.PageStatus{{URL: page.URL, Chars: len([]rune(page.Text))}}
		contextTexts = []string{page.Text}
	default:
		chunks, err := e.Retrieve(ctx, req.Message, req.TopK)
		if err != nil {
			return nil, err
		}
		if len(chunks) > 0 {
			resp.Source = models.ContextIndex
			resp.Context = chunks
		}
		for _, c := range chunks {
			contextTexts = append(contextTexts, c.Text)
		}
	}

	prompt := completion.BuildPrompt(req.Message, contextTexts, e.config.Temperature, e.config.MaxTokens)
	answer, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	resp.Response = answer
	e.logger.Debug("chat answered",
		zap.String("source", resp.Source),
		zap.Int("context_fragments", len(contextTexts)),
		zap.Int("answer_chars", len(answer)),
	)
	return resp, nil
}

func pageStatuses(report *web.Report) []models.PageStatus {
	out := make([]models.PageStatus, len(report.Pages))
	for i, p := range report.Pages {
		out[i] = models.PageStatus{URL: p.URL, Chars: p.Chars}
		if p.Err != nil {
			out[i].Error = p.Err.Error()
		}
	}
	return out
}

// Close releases the embedder, index and ledger.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.embedder.Close(); err != nil {
		firstErr = err
	}
	if err := e.index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if e.storage != nil {
		if err := e.storage.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
