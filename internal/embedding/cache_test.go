package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/tanya/pkg/utils"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Set("c", []float32{6}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len=%d", c.Len())
	}
}

func TestEmbeddingCache_GetRefreshesRecency(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Get("a")
	c.Set("c", []float32{3}) // evicts b, not a
	if _, ok := c.Get("a"); !ok {
		t.Error("a was used recently and should remain")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("b should be evicted")
	}
}

type countingEmbedder struct {
	*MockEmbedder
	batches [][]string
	fail    bool
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, append([]string(nil), texts...))
	if c.fail {
		return nil, ErrEmbedding
	}
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_EmbedBatchForwardsDistinctMisses(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(4)}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	first, err := c.EmbedBatch(ctx, []string{"x", "y", "x"})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 || first[0][0] != first[2][0] {
		t.Fatalf("unexpected vectors %v", first)
	}
	if len(inner.batches) != 1 || len(inner.batches[0]) != 2 {
		t.Fatalf("expected one call with 2 distinct texts, got %v", inner.batches)
	}

	second, err := c.EmbedBatch(ctx, []string{"y", "z"})
	if err != nil {
		t.Fatal(err)
	}
	if len(inner.batches) != 2 || len(inner.batches[1]) != 1 || inner.batches[1][0] != "z" {
		t.Errorf("expected only z forwarded, got %v", inner.batches)
	}
	if second[0][0] != first[1][0] {
		t.Error("cached y should be reused")
	}

	if _, err := c.EmbedBatch(ctx, []string{"x", "y"}); err != nil {
		t.Fatal(err)
	}
	if len(inner.batches) != 2 {
		t.Error("fully cached batch should not call the inner embedder")
	}
}

func TestCachedEmbedder_PropagatesErrors(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(4), fail: true}
	c := NewCachedEmbedder(inner, 10)
	if _, err := c.EmbedBatch(context.Background(), []string{"a"}); !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "hello")
	b, _ := e.Embed(ctx, "hello")
	c, _ := e.Embed(ctx, "goodbye")
	if len(a) != 16 {
		t.Fatalf("len=%d", len(a))
	}
	same := true
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text should give the same vector")
		}
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different texts should give different vectors")
	}
}

func TestMockEmbedder_UnitLength(t *testing.T) {
	e := NewMockEmbedder(0)
	if e.Dimensions() != 384 {
		t.Fatalf("default dimensions = %d", e.Dimensions())
	}
	vecs, err := e.EmbedBatch(context.Background(), []string{"", "one", "two words"})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vecs {
		if n := utils.L2Norm(v); math.Abs(n-1) > 1e-4 {
			t.Errorf("vector %d has norm %v", i, n)
		}
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}
