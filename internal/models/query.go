package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidInput is returned when a request is malformed or missing required fields.
var ErrInvalidInput = errors.New("invalid input")

// ChatRequest is a user question with optional contextual material.
// When URL is set, the page (or a crawl of its site when Crawl is true) is used as context
// instead of index retrieval.
type ChatRequest struct {
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
	Crawl   bool   `json:"crawl,omitempty"`
	TopK    int    `json:"top_k,omitempty"`
}

// Validate checks required fields and normalizes TopK into [1, maxTopK], using defaultTopK when unset.
func (r *ChatRequest) Validate(defaultTopK, maxTopK int) error {
	r.Message = strings.TrimSpace(r.Message)
	if r.Message == "" {
		return fmt.Errorf("%w: message cannot be empty", ErrInvalidInput)
	}
	r.URL = strings.TrimSpace(r.URL)
	if r.URL != "" {
		if err := ValidateURL(r.URL); err != nil {
			return err
		}
	} else if r.Crawl {
		return fmt.Errorf("%w: crawl requires url", ErrInvalidInput)
	}
	r.TopK = clampTopK(r.TopK, defaultTopK, maxTopK)
	return nil
}

// Context sources reported in ChatResponse.Source.
const (
	ContextNone  = "none"
	ContextIndex = "index"
	ContextPage  = "page"
	ContextSite  = "site"
)

// ChatResponse is the answer to a ChatRequest. Source says where the context came from;
// Context lists the retrieved fragments and Pages the fetched pages.
type ChatResponse struct {
	Response string           `json:"response"`
	Source   string           `json:"source,omitempty"`
	Context  []RetrievedChunk `json:"context,omitempty"`
	Pages    []PageStatus     `json:"pages,omitempty"`
}

// RetrievedChunk is one search hit: the chunk text at an index position and its L2 distance to the query.
type RetrievedChunk struct {
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Distance float32 `json:"distance"`
}

// SearchRequest asks for the nearest chunks to Query without calling the completion endpoint.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate ensures the query is non-empty and normalizes TopK.
func (q *SearchRequest) Validate(defaultTopK, maxTopK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidInput)
	}
	q.TopK = clampTopK(q.TopK, defaultTopK, maxTopK)
	return nil
}

// SearchResponse is the response for a SearchRequest.
type SearchResponse struct {
	Query     string           `json:"query"`
	Results   []RetrievedChunk `json:"results"`
	QueryTime int64            `json:"query_time_ms"`
}

// IngestURLRequest asks to ingest a page, or a same-origin crawl starting at it.
type IngestURLRequest struct {
	URL   string `json:"url"`
	Crawl bool   `json:"crawl,omitempty"`
}

// Validate trims URL and checks that it is an absolute http(s) URL.
func (r *IngestURLRequest) Validate() error {
	r.URL = strings.TrimSpace(r.URL)
	return ValidateURL(r.URL)
}

// ValidateURL returns ErrInvalidInput unless raw is an absolute http or https URL with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: bad url %q: %v", ErrInvalidInput, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url must be http or https: %q", ErrInvalidInput, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url has no host: %q", ErrInvalidInput, raw)
	}
	return nil
}

func clampTopK(k, def, max int) int {
	if k <= 0 {
		k = def
	}
	if max > 0 && k > max {
		k = max
	}
	return k
}
