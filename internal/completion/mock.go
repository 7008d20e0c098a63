package completion

import (
	"context"
	"fmt"
	"sync"
)

// MockCompleter records prompts and answers with a fixed reply. Used for tests and offline runs.
type MockCompleter struct {
	Reply string
	Err   error

	mu      sync.Mutex
	prompts []Prompt
}

// Complete records p and returns Reply, or Err wrapped in ErrCompletion when set.
func (m *MockCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, p)
	m.mu.Unlock()
	if m.Err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletion, m.Err)
	}
	return m.Reply, nil
}

// Prompts returns the prompts received so far.
func (m *MockCompleter) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}
