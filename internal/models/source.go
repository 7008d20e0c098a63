// Package models defines core data structures for ingested sources, chunks, and chat requests.
package models

import "time"

// SourceKind identifies where ingested text came from.
type SourceKind string

const (
	SourceText SourceKind = "text"
	SourceFile SourceKind = "file"
	SourceURL  SourceKind = "url"
	SourceSite SourceKind = "site"
)

// Source is one ingested unit of text (a file, a pasted text, a page or a crawl) as recorded in the ledger.
// FirstPosition is the index position of its first chunk; its chunks occupy
// [FirstPosition, FirstPosition+ChunkCount).
type Source struct {
	ID            string     `json:"id" db:"id"`
	Kind          SourceKind `json:"kind" db:"kind"`
	Locator       string     `json:"locator" db:"locator"`
	Title         string     `json:"title,omitempty" db:"title"`
	ContentHash   string     `json:"content_hash" db:"content_hash"`
	Chars         int        `json:"chars" db:"chars"`
	FirstPosition int        `json:"first_position" db:"first_position"`
	ChunkCount    int        `json:"chunk_count" db:"chunk_count"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// Chunk is a contiguous run of text produced by the chunker. Index is its order within the source;
// Tokens is its whitespace word count.
type Chunk struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

// StoredChunk is a chunk as recorded in the ledger, tied to its source and index position.
type StoredChunk struct {
	SourceID   string `json:"source_id" db:"source_id"`
	Position   int    `json:"position" db:"position"`
	ChunkIndex int    `json:"chunk_index" db:"chunk_index"`
	Content    string `json:"content" db:"content"`
}

// IngestResult describes the outcome of one ingestion.
// Skipped is true when identical content had already been ingested; Source then refers to the earlier record.
type IngestResult struct {
	Source  *Source      `json:"source"`
	Chunks  int          `json:"chunks"`
	Skipped bool         `json:"skipped"`
	Pages   []PageStatus `json:"pages,omitempty"`
}

// PageStatus reports one page of a crawl.
type PageStatus struct {
	URL   string `json:"url"`
	Chars int    `json:"chars"`
	Error string `json:"error,omitempty"`
}
