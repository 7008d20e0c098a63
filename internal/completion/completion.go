// Package completion builds grounded prompts and sends them to a chat completion endpoint.
package completion

import (
	"context"
	"errors"
	"strings"
)

// ErrCompletion marks a failed completion call.
var ErrCompletion = errors.New("completion failed")

const (
	systemWithContext = "You are a helpful assistant. Use the provided context to answer the user's question. " +
		"If the context is unclear or insufficient, use general knowledge."
	systemPlain = "You are a helpful assistant. Answer the user's question."
)

// Prompt is one completion request: a system instruction and a user turn.
type Prompt struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Completer returns the model's reply to a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// BuildPrompt grounds question in the given context chunks. Without chunks it asks the question directly.
func BuildPrompt(question string, chunks []string, temperature float32, maxTokens int) Prompt {
	p := Prompt{Temperature: temperature, MaxTokens: maxTokens}
	var nonEmpty []string
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	if len(nonEmpty) == 0 {
		p.System = systemPlain
		p.User = question
		return p
	}
	p.System = systemWithContext
	p.User = "Context:\n" + strings.Join(nonEmpty, "\n\n") + "\n\nQuestion: " + question
	return p
}
