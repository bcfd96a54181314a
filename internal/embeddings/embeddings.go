package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput reports empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig reports an unusable provider configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")

	// ErrEmbeddingFailed reports a failure in the underlying provider.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// DefaultDimensions is the vector size used when neither the config nor
// the model name determines one. Matches BAAI/bge-small-en-v1.5.
const DefaultDimensions = 384

// Embedder converts text into vectors.
type Embedder interface {
	// EmbedDocuments embeds a batch of stored texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder that knows its vector size and can release
// its resources.
type Provider interface {
	Embedder

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// Close releases model handles or network clients.
	Close() error
}

// Config selects and configures an embedding provider.
type Config struct {
	// Provider is "hash", "fastembed", "openai", or "tei".
	Provider string

	// Model names the embedding model.
	Model string

	// BaseURL locates openai/tei endpoints.
	BaseURL string

	// APIKey authenticates openai endpoints; optional for tei.
	APIKey string

	// Dimensions overrides model dimension detection when positive.
	Dimensions int

	// RequestsPerSecond rate limits remote providers; 0 disables.
	RequestsPerSecond float64

	// CacheDir holds downloaded fastembed models.
	CacheDir string
}

// New builds the configured provider, instrumented with generation
// metrics. An empty provider name selects "hash".
func New(cfg Config, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		inner Provider
		err   error
	)
	switch cfg.Provider {
	case "", "hash":
		inner = NewHashProvider(cfg.Dimensions)
	case "fastembed":
		inner, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "openai", "tei":
		inner, err = NewRemoteProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return &instrumented{
		Provider: inner,
		model:    modelLabel(cfg),
		metrics:  NewMetrics(logger),
	}, nil
}

func modelLabel(cfg Config) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	if cfg.Provider == "" {
		return "hash"
	}
	return cfg.Provider
}

// modelDimensions maps known model names to their vector sizes.
var modelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// dimensionsForModel resolves a model name to its vector size, falling
// back on naming conventions and then DefaultDimensions.
func dimensionsForModel(model string) int {
	if dim, ok := modelDimensions[model]; ok {
		return dim
	}
	switch {
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "small"), strings.Contains(model, "mini"):
		return 384
	default:
		return DefaultDimensions
	}
}
