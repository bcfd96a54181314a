package logging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/pkg/scope"
)

func TestIntegration_FullLoggingPipeline(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = TraceLevel
	cfg.Format = "json"
	cfg.Output.Stdout = true
	cfg.Output.OTEL = false
	cfg.Sampling.Enabled = false

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	defer func() {
		_ = logger.Sync()
	}()

	ctx := scope.WithScope(context.Background(), scope.MustParse("workflow:wf1"))
	ctx = WithRequestID(ctx, "req_integration_456")

	logger.Trace(ctx, "trace message", zap.String("detail", "wire-level"))
	logger.Debug(ctx, "debug message", zap.String("cache", "hit"))
	logger.Info(ctx, "info message", zap.Duration("duration", 45*time.Millisecond))
	logger.Warn(ctx, "warn message", zap.Int("retry_attempt", 2))
	logger.Error(ctx, "error message", zap.Error(fmt.Errorf("test error")))

	logger.Info(ctx, "index configured",
		zap.Object("qdrant", &testIndexConfig{
			Host:   "localhost",
			APIKey: config.Secret("qd-secret"),
		}),
	)

	child := logger.With(zap.String("component", "storage"))
	child.Info(ctx, "child log")

	named := logger.Named("index")
	named.Info(ctx, "named log")

	// Sync on stdout fails in some environments; we only require no panic.
	_ = logger.Sync()
}

type testIndexConfig struct {
	Host   string
	APIKey config.Secret
}

func (c *testIndexConfig) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("host", c.Host)
	return (&secretMarshaler{key: "api_key", val: c.APIKey}).MarshalLogObject(enc)
}

func TestIntegration_ContextFieldInjection(t *testing.T) {
	tl := NewTestLogger()

	ctx := scope.WithScope(context.Background(), scope.MustParse("workflow:wf1:task:t1"))
	ctx = WithRequestID(ctx, "req_123")

	tl.Info(ctx, "request", zap.String("method", "GET"))

	tl.AssertLogged(t, zapcore.InfoLevel, "request")
	tl.AssertScope(t, "request", "workflow:wf1:task:t1")
	tl.AssertField(t, "request", "request_id", "req_123")
	tl.AssertField(t, "request", "method", "GET")
}

func TestIntegration_SecretRedaction(t *testing.T) {
	tl := NewTestLogger()

	secret := config.Secret("my-secret-token")
	tl.Info(context.Background(), "auth",
		Secret("credentials", secret),
	)

	tl.AssertLogged(t, zapcore.InfoLevel, "auth")
	tl.AssertNoSecrets(t)
}
