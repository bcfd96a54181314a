// Package logging provides structured, context-aware logging for
// memoryd on top of Zap.
//
// Log entries are automatically correlated with the active trace span,
// the requester scope, and the request ID when present in the context.
// Sensitive fields and values are redacted at encode time, and log
// volume is sampled below the error level.
//
// Usage:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//		return err
//	}
//	defer logger.Sync()
//
//	logger.Info(ctx, "stored item",
//		zap.String("key", key),
//	)
//
// A custom trace level below debug is available for wire-level detail:
//
//	logger.Trace(ctx, "provider payload", zap.Int("bytes", len(raw)))
package logging
