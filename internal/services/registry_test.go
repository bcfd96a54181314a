package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/scope"
	"github.com/fyrsmithlabs/memoryd/pkg/storage"
)

func TestNewRegistry_Accessors(t *testing.T) {
	provider := storage.NewMemoryProvider()
	svc, err := memory.NewService(provider, zaptest.NewLogger(t))
	require.NoError(t, err)

	r := NewRegistry(Options{Memory: svc, Storage: provider})

	assert.Same(t, svc, r.Memory())
	assert.Same(t, provider, r.Storage())
	assert.Nil(t, r.Index())
	assert.Nil(t, r.Embedder())
	assert.Nil(t, r.Scrubber())
	assert.Nil(t, r.Events())
	assert.NoError(t, r.Close())
}

// baseConfig is the smallest config Build accepts: in-memory storage,
// no index, no events, no scrubbing.
func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Storage.Provider = storage.ProviderMemory
	cfg.Index.Provider = "none"
	return cfg
}

func TestBuild_Minimal(t *testing.T) {
	r, err := Build(baseConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, r.Close()) })

	require.NotNil(t, r.Memory())
	require.NotNil(t, r.Storage())
	assert.Nil(t, r.Index())
	assert.Nil(t, r.Embedder())
	assert.Nil(t, r.Events())
	require.NotNil(t, r.Scrubber())
	assert.False(t, r.Scrubber().Enabled())

	// The façade is wired to the storage provider.
	ctx := scope.WithScope(context.Background(), scope.Global)
	_, err = r.Memory().StoreContent(ctx, "greeting", "hello from the registry")
	require.NoError(t, err)

	item, err := r.Memory().Retrieve(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello from the registry", item.Text())
}

func TestBuild_WithChromemIndex(t *testing.T) {
	cfg := baseConfig()
	cfg.Index.Provider = "chromem"
	cfg.Embeddings.Provider = "hash"

	r, err := Build(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, r.Close()) })

	require.NotNil(t, r.Index())
	require.NotNil(t, r.Embedder())

	// Search goes through the index, not the keyword fallback.
	ctx := scope.WithScope(context.Background(), scope.Global)
	_, err = r.Memory().StoreContent(ctx, "deploy", "deploy the api server")
	require.NoError(t, err)
	_, err = r.Memory().StoreContent(ctx, "finance", "quarterly finance report")
	require.NoError(t, err)

	results, err := r.Memory().Search(ctx, "deploy the api server")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "deploy", results[0].Key)
}

func TestBuild_ScrubberEnabled(t *testing.T) {
	cfg := baseConfig()
	cfg.Secrets.ScrubContent = true

	r, err := Build(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, r.Close()) })

	assert.True(t, r.Scrubber().Enabled())
}

func TestBuild_InvalidStorage(t *testing.T) {
	cfg := baseConfig()
	cfg.Storage.Provider = "postgres"

	_, err := Build(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.ErrorContains(t, err, "building storage")
}
