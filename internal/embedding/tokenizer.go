package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// BERT special token IDs.
const (
	padTokenID = 0
	clsTokenID = 101
	sepTokenID = 102
	// first ID handed out to hashed word pieces, above the reserved range
	firstWordID = 1000
	vocabSize   = 30522
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer maps lowercased words and punctuation marks to IDs by hashing them into the
// model's vocabulary range. It stands in for a vocabulary-backed tokenizer.
type HashTokenizer struct{}

// Tokenize returns [CLS] tokens... [SEP] padded to maxTokens. Input beyond maxTokens-2 tokens is dropped.
func (HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	ids := []int64{clsTokenID}
	for _, tok := range BasicTokens(text) {
		if len(ids) == maxTokens-1 {
			break
		}
		ids = append(ids, TokenID(tok))
	}
	ids = append(ids, sepTokenID)

	for i, id := range ids {
		inputIDs[i] = id
		attentionMask[i] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// BasicTokens lowercases text and splits it on whitespace, emitting each punctuation mark as
// its own token. Blank text yields nil.
func BasicTokens(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// TokenID hashes a token into [firstWordID, vocabSize).
func TokenID(token string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return firstWordID + int64(h.Sum32()%(vocabSize-firstWordID))
}
