// Package web fetches pages over HTTP and crawls small same-origin sites for chat context.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/tanya/internal/extract"
	"github.com/hyperjump/tanya/pkg/utils"
	"golang.org/x/net/html/charset"
)

// ErrFetch marks a page that could not be retrieved: transport failure, timeout or non-2xx status.
var ErrFetch = errors.New("fetch failed")

// Page is the extracted content of one fetched URL.
type Page struct {
	// URL is the final URL after redirects.
	URL   string
	Title string
	// Text is the visible text, whitespace-collapsed.
	Text string
	// Links are absolute http(s) links without fragments, in document order.
	Links []string
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	MaxPageChars int
}

// Fetcher retrieves pages and extracts their text.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	maxPageChars int
}

// NewFetcher creates a fetcher. client may be nil, in which case one is built with cfg.Timeout.
func NewFetcher(cfg FetcherConfig, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{
		client:       client,
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
		maxPageChars: cfg.MaxPageChars,
	}
}

// Fetch retrieves rawURL and parses it. HTML is stripped to its visible text; other text/* bodies
// are used as is.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetch, rawURL, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBodyBytes)
	}
	contentType := resp.Header.Get("Content-Type")
	body, err = charset.NewReader(body, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrFetch, rawURL, err)
	}

	final := resp.Request.URL
	page := &Page{URL: final.String()}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "" || strings.Contains(mediaType, "html"):
		doc, err := extract.ParseHTML(body)
		if err != nil {
			return nil, err
		}
		page.Title = doc.Title
		page.Text = doc.Text
		base := final
		if doc.BaseHref != "" {
			if b, err := final.Parse(doc.BaseHref); err == nil {
				base = b
			}
		}
		page.Links = resolveLinks(base, doc.Links)
	case strings.HasPrefix(mediaType, "text/"):
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrFetch, rawURL, err)
		}
		page.Text = utils.CollapseWhitespace(string(data))
	default:
		return nil, fmt.Errorf("%w: %s has unsupported content type %q", extract.ErrUnsupportedType, rawURL, mediaType)
	}
	return page, nil
}

// FetchText fetches rawURL and returns its text truncated to the page character budget.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (*Page, error) {
	page, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	page.Text = utils.TruncateChars(page.Text, f.maxPageChars)
	return page, nil
}

// resolveLinks makes hrefs absolute against base, drops fragments and keeps http(s) links only.
func resolveLinks(base *url.URL, hrefs []string) []string {
	seen := make(map[string]bool, len(hrefs))
	var out []string
	for _, href := range hrefs {
		u, err := base.Parse(href)
		if err != nil {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		u.Fragment = ""
		u.RawFragment = ""
		s := u.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
