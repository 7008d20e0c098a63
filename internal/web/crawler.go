package web

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/hyperjump/tanya/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrCrawlFailed is returned when no page of a crawl could be fetched.
var ErrCrawlFailed = errors.New("crawl failed: no pages fetched")

// PageResult is the outcome of fetching one crawled URL. Err is nil on success.
type PageResult struct {
	URL   string
	Title string
	Chars int
	Err   error
}

// Report is the outcome of a crawl. Pages are in visit order.
type Report struct {
	Pages []PageResult
	// Text is the successful pages' text concatenated in visit order, truncated to the crawl budget.
	Text string
}

// Visited returns the number of URLs dequeued and fetched.
func (r *Report) Visited() int { return len(r.Pages) }

// Succeeded returns the number of pages fetched without error.
func (r *Report) Succeeded() int {
	n := 0
	for _, p := range r.Pages {
		if p.Err == nil {
			n++
		}
	}
	return n
}

// Crawler performs bounded breadth-first crawls within one origin.
type Crawler struct {
	fetcher  *Fetcher
	maxPages int
	maxChars int
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// CrawlerOption configures a Crawler.
type CrawlerOption func(*Crawler)

// WithCrawlLogger sets the logger for per-page events.
func WithCrawlLogger(l *zap.Logger) CrawlerOption {
	return func(c *Crawler) { c.logger = l }
}

// WithRequestsPerSecond paces page fetches. 0 disables pacing.
func WithRequestsPerSecond(rps float64) CrawlerOption {
	return func(c *Crawler) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewCrawler creates a crawler that visits at most maxPages URLs and keeps at most maxChars of text.
func NewCrawler(fetcher *Fetcher, maxPages, maxChars int, opts ...CrawlerOption) *Crawler {
	if maxPages < 1 {
		maxPages = 1
	}
	c := &Crawler{
		fetcher:  fetcher,
		maxPages: maxPages,
		maxChars: maxChars,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl visits start and same-origin pages reachable from it, breadth first, until the frontier is
// empty or maxPages URLs were visited. A failed page is recorded in the report and the crawl continues.
// It fails with ErrCrawlFailed only when every visited page failed.
func (c *Crawler) Crawl(ctx context.Context, start string) (*Report, error) {
	startURL, err := canonicalURL(start)
	if err != nil || startURL.Host == "" {
		return nil, fmt.Errorf("%w: invalid start URL %q", ErrFetch, start)
	}
	origin := startURL.Host

	queue := []string{startURL.String()}
	queued := map[string]bool{startURL.String(): true}
	visited := make(map[string]bool)
	report := &Report{}
	var texts []string

	for len(queue) > 0 && len(visited) < c.maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := queue[0]
		queue = queue[1:]
		if visited[next] {
			continue
		}
		visited[next] = true

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := c.fetcher.Fetch(ctx, next)
		if err != nil {
			c.logger.Warn("crawl page failed", zap.String("url", next), zap.Error(err))
			report.Pages = append(report.Pages, PageResult{URL: next, Err: err})
			continue
		}
		c.logger.Debug("crawl page fetched", zap.String("url", next), zap.Int("links", len(page.Links)))
		report.Pages = append(report.Pages, PageResult{URL: next, Title: page.Title, Chars: len([]rune(page.Text))})
		if page.Text != "" {
			texts = append(texts, page.Text)
		}

		for _, link := range page.Links {
			u, err := canonicalURL(link)
			if err != nil || u.Host != origin {
				continue
			}
			key := u.String()
			if visited[key] || queued[key] {
				continue
			}
			queued[key] = true
			queue = append(queue, key)
		}
	}

	if report.Succeeded() == 0 {
		return report, ErrCrawlFailed
	}
	report.Text = utils.TruncateChars(strings.Join(texts, "\n\n"), c.maxChars)
	c.logger.Info("crawl finished",
		zap.String("start", start),
		zap.Int("visited", report.Visited()),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("chars", len([]rune(report.Text))),
	)
	return report, nil
}

// canonicalURL returns raw with a lowercased scheme and host, no fragment and "/" for an empty
// path, so that spellings of the same page share one frontier key.
func canonicalURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	return u, nil
}
