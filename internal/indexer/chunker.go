// Package indexer provides sentence chunking and the ingestion pipeline.
package indexer

import (
	"strings"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/pkg/utils"
)

// sentenceBreak separates sentence units. Whitespace is collapsed before splitting, so a single space suffices.
const sentenceBreak = ". "

// Chunker splits text into sentence-aligned chunks of at most maxTokens words,
// carrying the trailing overlap sentences of each chunk into the next.
type Chunker struct {
	maxTokens int
	overlap   int
}

// NewChunker creates a chunker with the given word budget and sentence overlap.
// A non-positive maxTokens makes every sentence its own chunk; a negative overlap is treated as zero.
func NewChunker(maxTokens, overlap int) *Chunker {
	if maxTokens < 1 {
		maxTokens = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{maxTokens: maxTokens, overlap: overlap}
}

// MaxTokens returns the configured word budget per chunk.
func (c *Chunker) MaxTokens() int { return c.maxTokens }

// Overlap returns the configured number of carried sentences.
func (c *Chunker) Overlap() int { return c.overlap }

type sentence struct {
	text   string
	tokens int
}

// Chunk splits text into chunks. Empty or whitespace-only text yields no chunks.
// A sentence longer than the budget is emitted alone. Carried sentences are dropped from the front
// until they fit the budget together with the sentence that triggered the flush.
func (c *Chunker) Chunk(text string) []models.Chunk {
	sentences := splitSentences(Preprocess(text))
	if len(sentences) == 0 {
		return nil
	}
	var (
		chunks []models.Chunk
		cur    []sentence
		tokens int
	)
	for _, s := range sentences {
		if len(cur) > 0 && tokens+s.tokens > c.maxTokens {
			chunks = append(chunks, makeChunk(len(chunks), cur))
			cur = c.carry(cur, s.tokens)
			tokens = sumTokens(cur)
		}
		cur = append(cur, s)
		tokens += s.tokens
	}
	if len(cur) > 0 {
		chunks = append(chunks, makeChunk(len(chunks), cur))
	}
	return chunks
}

// carry returns the suffix of prev that starts the next chunk.
func (c *Chunker) carry(prev []sentence, next int) []sentence {
	if c.overlap == 0 {
		return nil
	}
	start := len(prev) - c.overlap
	if start < 0 {
		start = 0
	}
	tail := prev[start:]
	for len(tail) > 0 && sumTokens(tail)+next > c.maxTokens {
		tail = tail[1:]
	}
	out := make([]sentence, len(tail))
	copy(out, tail)
	return out
}

func makeChunk(idx int, units []sentence) models.Chunk {
	parts := make([]string, len(units))
	for i, u := range units {
		parts[i] = u.text
	}
	return models.Chunk{
		Index:  idx,
		Text:   strings.Join(parts, " "),
		Tokens: sumTokens(units),
	}
}

func sumTokens(units []sentence) int {
	n := 0
	for _, u := range units {
		n += u.tokens
	}
	return n
}

// splitSentences splits normalized text on ". " and restores the period on every unit but the last,
// so joining the units with a space reproduces the input.
func splitSentences(text string) []sentence {
	if text == "" {
		return nil
	}
	parts := strings.Split(text, sentenceBreak)
	out := make([]sentence, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += "."
		}
		out = append(out, sentence{text: p, tokens: utils.WordCount(p)})
	}
	return out
}
