package index

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/pkg/memory"
)

// New builds the search index selected by the configuration and wraps
// it for the memory service.
//
// Provider "none" returns a nil index: the service then answers
// searches through its keyword fallback only. "chromem" (the default)
// needs no external service; "qdrant" dials the configured gRPC
// endpoint and fails construction when it is unreachable.
func New(cfg config.IndexConfig, embedder embeddings.Provider, logger *zap.Logger) (memory.SearchIndex, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Provider {
	case "none":
		return nil, nil

	case "", "chromem":
		store, err = NewChromem(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Collection: cfg.Chromem.Collection,
			Compress:   cfg.Chromem.Compress,
		}, embedder, logger)

	case "qdrant":
		if embedder == nil {
			return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
		}
		store, err = NewQdrant(QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			Collection: cfg.Qdrant.Collection,
			VectorSize: uint64(embedder.Dimensions()),
			UseTLS:     cfg.Qdrant.UseTLS,
			Timeout:    time.Duration(cfg.Qdrant.Timeout),
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: none, chromem, qdrant)",
			ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewAdapter(store, logger), nil
}
