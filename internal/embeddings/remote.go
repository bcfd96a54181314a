package embeddings

import (
	"context"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// defaultBurst allows short request bursts under rate limiting.
const defaultBurst = 5

// RemoteProvider embeds text through an OpenAI-compatible HTTP API.
// This covers both the OpenAI platform and TEI (text-embeddings-
// inference) servers, which speak the same protocol.
type RemoteProvider struct {
	embedder *lcembeddings.EmbedderImpl
	limiter  *rate.Limiter
	dims     int
}

// NewRemoteProvider builds an openai or tei provider from cfg.
func NewRemoteProvider(cfg Config) (*RemoteProvider, error) {
	if cfg.BaseURL == "" {
		if cfg.Provider == "openai" {
			cfg.BaseURL = "https://api.openai.com/v1"
		} else {
			return nil, fmt.Errorf("%w: base_url required for provider %q", ErrInvalidConfig, cfg.Provider)
		}
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required for provider %q", ErrInvalidConfig, cfg.Provider)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		if cfg.Provider == "openai" {
			return nil, fmt.Errorf("%w: api_key required for provider openai", ErrInvalidConfig)
		}
		// The client insists on a token; TEI ignores it.
		apiKey = "unused"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(apiKey),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), defaultBurst)
	}

	dims := cfg.Dimensions
	if dims <= 0 {
		dims = dimensionsForModel(cfg.Model)
	}

	return &RemoteProvider{
		embedder: embedder,
		limiter:  limiter,
		dims:     dims,
	}, nil
}

// EmbedDocuments embeds a batch of texts in one API call.
func (p *RemoteProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// EmbedQuery embeds a single query text.
func (p *RemoteProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

// Dimensions returns the configured or model-detected vector size.
func (p *RemoteProvider) Dimensions() int {
	return p.dims
}

// Close is a no-op; the provider holds no connections between calls.
func (p *RemoteProvider) Close() error {
	return nil
}

func (p *RemoteProvider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
