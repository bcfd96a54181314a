package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/internal/events"
	"github.com/fyrsmithlabs/memoryd/internal/index"
	"github.com/fyrsmithlabs/memoryd/internal/secrets"
	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/storage"
)

// Build assembles the full service registry from configuration.
//
// Construction order matters: storage first, then the embedder and
// index when one is configured, then the scrubber and event publisher,
// and finally the memory façade wired over all of them. Partially
// constructed services are closed on failure.
func Build(cfg *config.Config, logger *zap.Logger) (Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider, err := storage.New(cfg.Storage, logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("building storage: %w", err)
	}

	var (
		embedder embeddings.Provider
		idx      memory.SearchIndex
	)
	if cfg.Index.Provider != "none" {
		embedder, err = embeddings.New(embeddings.Config{
			Provider:          cfg.Embeddings.Provider,
			Model:             cfg.Embeddings.Model,
			BaseURL:           cfg.Embeddings.BaseURL,
			APIKey:            string(cfg.Embeddings.APIKey),
			Dimensions:        cfg.Embeddings.Dimensions,
			RequestsPerSecond: cfg.Embeddings.RequestsPerSecond,
			CacheDir:          cfg.Embeddings.CacheDir,
		}, logger.Named("embeddings"))
		if err != nil {
			_ = provider.Close()
			return nil, fmt.Errorf("building embedder: %w", err)
		}

		idx, err = index.New(cfg.Index, embedder, logger.Named("index"))
		if err != nil {
			_ = embedder.Close()
			_ = provider.Close()
			return nil, fmt.Errorf("building index: %w", err)
		}
	}

	scrubber, err := secrets.New(secrets.Config{
		Enabled:       cfg.Secrets.ScrubContent,
		AllowlistPath: cfg.Secrets.AllowlistPath,
	}, logger.Named("secrets"))
	if err != nil {
		closeAll(idx, embedder, provider)
		return nil, fmt.Errorf("building scrubber: %w", err)
	}

	var publisher *events.Publisher
	if cfg.Events.Enabled {
		publisher, err = events.NewPublisher(events.Config{
			URL:           cfg.Events.URL,
			SubjectPrefix: cfg.Events.SubjectPrefix,
		}, logger.Named("events"))
		if err != nil {
			closeAll(idx, embedder, provider)
			return nil, fmt.Errorf("building event publisher: %w", err)
		}
	}

	opts := []memory.ServiceOption{}
	if idx != nil {
		opts = append(opts, memory.WithSearchIndex(idx))
	}
	if scrubber.Enabled() {
		opts = append(opts, memory.WithScrubber(scrubber))
	}
	if publisher != nil {
		opts = append(opts, memory.WithEventSink(publisher))
	}

	svc, err := memory.NewService(provider, logger.Named("memory"), opts...)
	if err != nil {
		if publisher != nil {
			_ = publisher.Close()
		}
		closeAll(idx, embedder, provider)
		return nil, fmt.Errorf("building memory service: %w", err)
	}

	return NewRegistry(Options{
		Memory:   svc,
		Storage:  provider,
		Index:    idx,
		Embedder: embedder,
		Scrubber: scrubber,
		Events:   publisher,
	}), nil
}

// closeAll releases partially constructed services after a Build
// failure.
func closeAll(idx memory.SearchIndex, embedder embeddings.Provider, provider storage.Provider) {
	if idx != nil {
		_ = idx.Close()
	}
	if embedder != nil {
		_ = embedder.Close()
	}
	if provider != nil {
		_ = provider.Close()
	}
}
