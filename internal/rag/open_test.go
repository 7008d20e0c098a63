package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockConfig(dir string) *config.Config {
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:    filepath.Join(dir, "db", "sources.db"),
			VectorIndexPath: filepath.Join(dir, "vector", "index"),
		},
		Embedding:  config.EmbeddingConfig{Provider: "mock", Dimensions: 16, CacheSize: 100},
		Completion: config.CompletionConfig{Provider: "mock"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestOpen_persistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	cfg := mockConfig(dir)
	ctx := context.Background()

	e, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	res, err := e.IngestText(ctx, "doc", "Persistent text lives here.")
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer e.Close()

	st, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Chunks, st.IndexSize)
	assert.Equal(t, int64(1), st.Sources)

	again, err := e.IngestText(ctx, "doc", "Persistent text lives here.")
	require.NoError(t, err)
	assert.True(t, again.Skipped)

	resp, err := e.Ask(ctx, &models.ChatRequest{Message: "Where does text live?"})
	require.NoError(t, err)
	assert.Equal(t, models.ContextIndex, resp.Source)
	assert.NotEmpty(t, resp.Response)
}

func TestOpen_corruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	cfg := mockConfig(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Storage.VectorIndexPath), 0755))
	require.NoError(t, os.WriteFile(vector.ChunksPath(cfg.Storage.VectorIndexPath), []byte(`{"count":1,"chunks":["x"]}`), 0600))

	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Equal(t, KindCorruptIndex, Classify(err))
}

func TestOpen_lostSnapshotRealignsLedger(t *testing.T) {
	dir := t.TempDir()
	cfg := mockConfig(dir)
	ctx := context.Background()

	e, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	_, err = e.IngestText(ctx, "doc", "Text that will be lost.")
	require.NoError(t, err)
	require.NoError(t, e.Close())

	require.NoError(t, os.Remove(vector.VectorsPath(cfg.Storage.VectorIndexPath)))
	require.NoError(t, os.Remove(vector.ChunksPath(cfg.Storage.VectorIndexPath)))

	e, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer e.Close()

	st, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.IndexSize)
	assert.Equal(t, int64(0), st.Sources)

	res, err := e.IngestText(ctx, "doc", "Text that will be lost.")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestOpen_unknownProvider(t *testing.T) {
	cfg := mockConfig(t.TempDir())
	cfg.Embedding.Provider = "nope"
	_, err := Open(context.Background(), cfg, nil)
	assert.Error(t, err)
}
