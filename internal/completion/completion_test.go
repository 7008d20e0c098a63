package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt_withContext(t *testing.T) {
	p := BuildPrompt("What is X?", []string{"X is a letter.", "", "It comes after W."}, 0.5, 500)
	assert.Equal(t, systemWithContext, p.System)
	assert.Equal(t, "Context:\nX is a letter.\n\nIt comes after W.\n\nQuestion: What is X?", p.User)
	assert.Equal(t, float32(0.5), p.Temperature)
	assert.Equal(t, 500, p.MaxTokens)
}

func TestBuildPrompt_withoutContext(t *testing.T) {
	p := BuildPrompt("Hi", nil, 0.5, 500)
	assert.Equal(t, systemPlain, p.System)
	assert.Equal(t, "Hi", p.User)

	p = BuildPrompt("Hi", []string{"  "}, 0.5, 500)
	assert.Equal(t, systemPlain, p.System, "blank chunks do not count as context")
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

func fakeChat(t *testing.T, handle func(w http.ResponseWriter, req chatRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		handle(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chatReply(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13},
	}
}

func TestOpenAICompleter_Complete(t *testing.T) {
	var got chatRequest
	srv := fakeChat(t, func(w http.ResponseWriter, req chatRequest) {
		got = req
		_ = json.NewEncoder(w).Encode(chatReply("  The answer.\n"))
	})
	c, err := NewOpenAICompleter(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1", Model: "gpt-4"})
	require.NoError(t, err)

	reply, err := c.Complete(context.Background(), BuildPrompt("Q?", []string{"ctx"}, 0.5, 500))
	require.NoError(t, err)
	assert.Equal(t, "The answer.", reply)

	assert.Equal(t, "gpt-4", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "Context:\nctx\n\nQuestion: Q?", got.Messages[1].Content)
	assert.Equal(t, float32(0.5), got.Temperature)
	assert.Equal(t, 500, got.MaxTokens)
}

func TestOpenAICompleter_httpError(t *testing.T) {
	srv := fakeChat(t, func(w http.ResponseWriter, req chatRequest) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	})
	c, err := NewOpenAICompleter(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), BuildPrompt("Q?", nil, 0.5, 500))
	assert.True(t, errors.Is(err, ErrCompletion), "got %v", err)
}

func TestOpenAICompleter_noChoices(t *testing.T) {
	srv := fakeChat(t, func(w http.ResponseWriter, req chatRequest) {
		reply := chatReply("")
		reply["choices"] = []map[string]any{}
		_ = json.NewEncoder(w).Encode(reply)
	})
	c, err := NewOpenAICompleter(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), BuildPrompt("Q?", nil, 0.5, 500))
	assert.ErrorIs(t, err, ErrCompletion)
}

func TestOpenAICompleter_timeout(t *testing.T) {
	srv := fakeChat(t, func(w http.ResponseWriter, req chatRequest) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(chatReply("late"))
	})
	c, err := NewOpenAICompleter(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1", Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), BuildPrompt("Q?", nil, 0.5, 500))
	assert.ErrorIs(t, err, ErrCompletion)
}

func TestNewOpenAICompleter_requiresKey(t *testing.T) {
	_, err := NewOpenAICompleter(OpenAIConfig{})
	assert.Error(t, err)
}

func TestMockCompleter(t *testing.T) {
	m := &MockCompleter{Reply: "ok"}
	reply, err := m.Complete(context.Background(), Prompt{User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Len(t, m.Prompts(), 1)

	m.Err = errors.New("down")
	_, err = m.Complete(context.Background(), Prompt{})
	assert.ErrorIs(t, err, ErrCompletion)
}

func TestNew(t *testing.T) {
	t.Setenv("TANYA_TEST_KEY", "secret")
	c, err := New(config.CompletionConfig{Provider: ProviderOpenAI, APIKeyEnv: "TANYA_TEST_KEY"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAICompleter{}, c)

	c, err = New(config.CompletionConfig{Provider: ProviderMock}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MockCompleter{}, c)

	_, err = New(config.CompletionConfig{Provider: "nope"}, nil)
	assert.Error(t, err)

	_, err = New(config.CompletionConfig{Provider: ProviderOpenAI, APIKeyEnv: "TANYA_TEST_MISSING_KEY"}, nil)
	assert.Error(t, err)
}
