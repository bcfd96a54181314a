package storage

import (
	"fmt"

	"go.uber.org/zap"
)

// New creates a Provider based on the configuration.
//
// The factory examines Config.Provider and creates the matching backend:
//   - "memory" (default): process-local map, lost on restart
//   - "file": one JSON document per scope under a directory
//   - "sqlite": single-file SQLite database
//
// Example:
//
//	provider, err := storage.New(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
func New(cfg Config, logger *zap.Logger) (Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case ProviderMemory:
		return NewMemoryProvider(), nil
	case ProviderFile:
		return NewFileProvider(cfg.File, logger)
	case ProviderSQLite:
		return NewSQLiteProvider(cfg.SQLite, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
