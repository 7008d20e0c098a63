package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingDatum struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// fakeEmbeddings serves /v1/embeddings, answering each input with reply(i, input).
func fakeEmbeddings(t *testing.T, reply func(req embeddingsRequest) (int, []embeddingDatum)) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status, data := reply(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": len(req.Input), "total_tokens": len(req.Input)},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func vectorsFor(req embeddingsRequest, dims int) []embeddingDatum {
	data := make([]embeddingDatum, len(req.Input))
	for i, in := range req.Input {
		vec := make([]float32, dims)
		vec[0] = float32(len(in))
		data[i] = embeddingDatum{Object: "embedding", Embedding: vec, Index: i}
	}
	return data
}

func newTestOpenAIEmbedder(t *testing.T, url string, dims, batch int) *OpenAIEmbedder {
	t.Helper()
	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    url + "/v1",
		Model:      "text-embedding-ada-002",
		Dimensions: dims,
		BatchSize:  batch,
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	return e
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	srv, calls := fakeEmbeddings(t, func(req embeddingsRequest) (int, []embeddingDatum) {
		return http.StatusOK, vectorsFor(req, 3)
	})
	e := newTestOpenAIEmbedder(t, srv.URL, 3, 2)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		assert.Len(t, v, 3)
		assert.Equal(t, float32(i+1), v[0], "vector %d out of order", i)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(calls), "5 inputs at batch size 2 need 3 requests")
}

func TestOpenAIEmbedder_ReordersByIndex(t *testing.T) {
	srv, _ := fakeEmbeddings(t, func(req embeddingsRequest) (int, []embeddingDatum) {
		data := vectorsFor(req, 2)
		data[0], data[1] = data[1], data[0]
		return http.StatusOK, data
	})
	e := newTestOpenAIEmbedder(t, srv.URL, 2, 10)

	vecs, err := e.EmbedBatch(context.Background(), []string{"x", "yyy"})
	require.NoError(t, err)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(3), vecs[1][0])
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	srv, _ := fakeEmbeddings(t, func(req embeddingsRequest) (int, []embeddingDatum) {
		return http.StatusOK, vectorsFor(req, 4)
	})
	e := newTestOpenAIEmbedder(t, srv.URL, 4, 10)

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 0, 0, 0}, v)
	assert.Equal(t, 4, e.Dimensions())
}

func TestOpenAIEmbedder_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply func(req embeddingsRequest) (int, []embeddingDatum)
	}{
		{"http error", func(req embeddingsRequest) (int, []embeddingDatum) {
			return http.StatusTooManyRequests, nil
		}},
		{"missing embeddings", func(req embeddingsRequest) (int, []embeddingDatum) {
			return http.StatusOK, vectorsFor(req, 3)[:1]
		}},
		{"wrong dimension", func(req embeddingsRequest) (int, []embeddingDatum) {
			return http.StatusOK, vectorsFor(req, 2)
		}},
		{"index out of range", func(req embeddingsRequest) (int, []embeddingDatum) {
			data := vectorsFor(req, 3)
			data[1].Index = 7
			return http.StatusOK, data
		}},
		{"duplicate index", func(req embeddingsRequest) (int, []embeddingDatum) {
			data := vectorsFor(req, 3)
			data[1].Index = 0
			return http.StatusOK, data
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeEmbeddings(t, tt.reply)
			e := newTestOpenAIEmbedder(t, srv.URL, 3, 10)
			vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrEmbedding), "got %v", err)
			assert.Nil(t, vecs)
		})
	}
}

func TestOpenAIEmbedder_LaterBatchFailureReturnsNothing(t *testing.T) {
	var n int32
	srv, _ := fakeEmbeddings(t, func(req embeddingsRequest) (int, []embeddingDatum) {
		if atomic.AddInt32(&n, 1) == 2 {
			return http.StatusInternalServerError, nil
		}
		return http.StatusOK, vectorsFor(req, 3)
	})
	e := newTestOpenAIEmbedder(t, srv.URL, 3, 1)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Nil(t, vecs)
}

func TestOpenAIEmbedder_RejectsEmptyInput(t *testing.T) {
	srv, calls := fakeEmbeddings(t, func(req embeddingsRequest) (int, []embeddingDatum) {
		return http.StatusOK, vectorsFor(req, 3)
	})
	e := newTestOpenAIEmbedder(t, srv.URL, 3, 10)
	_, err := e.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestOpenAIEmbedder_CancelledContext(t *testing.T) {
	srv, _ := fakeEmbeddings(t, func(req embeddingsRequest) (int, []embeddingDatum) {
		return http.StatusOK, vectorsFor(req, 3)
	})
	e := newTestOpenAIEmbedder(t, srv.URL, 3, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, "hello")
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{Dimensions: 3})
	assert.Error(t, err)
}
