package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	cfg := NewDefaultConfig()

	tel, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
}

func TestNew_NilLogger(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, tel)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := &Config{
		Enabled:  true,
		Endpoint: "",
	}

	tel, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestTelemetry_Health(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	health := tel.Health()
	assert.True(t, health.Healthy)
	assert.False(t, health.Degraded)
	assert.Empty(t, health.Reason)
}

func TestTelemetry_DegradedKeepsFirstReason(t *testing.T) {
	tel := &Telemetry{logger: zap.NewNop()}
	tel.healthy.Store(true)

	tel.setDegraded("building tracer provider", errors.New("dial refused"))
	tel.setDegraded("building meter provider", errors.New("dial refused"))

	health := tel.Health()
	assert.True(t, health.Healthy) // degraded, not dead
	assert.True(t, health.Degraded)
	assert.Contains(t, health.Reason, "building tracer provider")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		_ = tel.Health()
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
		tel.SetLoggerProvider(nil)
	})

	health := tel.Health()
	assert.False(t, health.Healthy)
	assert.True(t, health.Degraded)
}

func TestTelemetry_Shutdown(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, tel.Shutdown(context.Background()))

	assert.False(t, tel.Health().Healthy)
}

func TestTelemetry_ShutdownWithDeadline(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Shutdown.Timeout = config.Duration(100 * time.Millisecond)

	tel, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, tel.Shutdown(ctx))
}

func TestTelemetry_ForceFlush_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, tel.ForceFlush(context.Background()))
}

func TestTelemetry_SetLoggerProvider(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.Nil(t, tel.LoggerProvider())

	lp := lognoop.NewLoggerProvider()
	tel.SetLoggerProvider(lp)
	assert.Equal(t, lp, tel.LoggerProvider())
}

func TestTestTelemetry_SpanRecording(t *testing.T) {
	tt := NewTestTelemetry()
	require.NotNil(t, tt)

	tracer := tt.Tracer("test")
	_, span := tracer.Start(context.Background(), "store-memory")
	span.SetAttributes(attribute.String("memory.scope", "workflow:wf1"))
	span.End()

	tt.AssertSpanExists(t, "store-memory")
	tt.AssertSpanAttribute(t, "store-memory", "memory.scope", "workflow:wf1")
}

func TestTestTelemetry_SpanNotFound(t *testing.T) {
	tt := NewTestTelemetry()

	assert.Nil(t, tt.SpanByName("non-existent"))
}

func TestTestTelemetry_MultipleSpans(t *testing.T) {
	tt := NewTestTelemetry()

	tracer := tt.Tracer("test")

	_, span1 := tracer.Start(context.Background(), "span1")
	span1.SetAttributes(attribute.Int64("count", 1))
	span1.End()

	_, span2 := tracer.Start(context.Background(), "span2")
	span2.SetAttributes(attribute.Int64("count", 2))
	span2.End()

	_, span3 := tracer.Start(context.Background(), "span3")
	span3.SetAttributes(attribute.Bool("done", true))
	span3.End()

	assert.Len(t, tt.Spans(), 3)
	tt.AssertSpanAttribute(t, "span1", "count", int64(1))
	tt.AssertSpanAttribute(t, "span2", "count", int64(2))
	tt.AssertSpanAttribute(t, "span3", "done", true)
}

func TestTestTelemetry_SpanAttributeTypes(t *testing.T) {
	tt := NewTestTelemetry()

	tracer := tt.Tracer("test")
	_, span := tracer.Start(context.Background(), "typed-span")
	span.SetAttributes(
		attribute.String("string-key", "value"),
		attribute.Int64("int-key", 42),
		attribute.Float64("float-key", 3.14),
		attribute.Bool("bool-key", true),
	)
	span.End()

	tt.AssertSpanAttribute(t, "typed-span", "string-key", "value")
	tt.AssertSpanAttribute(t, "typed-span", "int-key", int64(42))
	tt.AssertSpanAttribute(t, "typed-span", "float-key", 3.14)
	tt.AssertSpanAttribute(t, "typed-span", "bool-key", true)
}

func TestTestTelemetry_Reset(t *testing.T) {
	tt := NewTestTelemetry()

	tracer := tt.Tracer("test")
	_, span := tracer.Start(context.Background(), "to-discard")
	span.End()
	require.NotEmpty(t, tt.Spans())

	tt.Reset()

	assert.Empty(t, tt.Spans())
}

func TestTestTelemetry_MeterRecording(t *testing.T) {
	tt := NewTestTelemetry()

	meter := tt.Meter("test")
	counter, err := meter.Int64Counter("memoryd.test.counter")
	require.NoError(t, err)

	counter.Add(context.Background(), 1)
	counter.Add(context.Background(), 2)

	tt.AssertMetricExists(t, "memoryd.test.counter")

	rm, err := tt.Collect(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rm.ScopeMetrics)
}

func TestTestTelemetry_ForceFlush(t *testing.T) {
	tt := NewTestTelemetry()

	tracer := tt.Tracer("test")
	_, span := tracer.Start(context.Background(), "flush-test")
	span.End()

	require.NoError(t, tt.ForceFlush(context.Background()))
}

func TestTestTelemetry_Shutdown(t *testing.T) {
	tt := NewTestTelemetry()

	tracer := tt.Tracer("test")
	_, span := tracer.Start(context.Background(), "shutdown-test")
	span.End()

	meter := tt.Meter("test")
	counter, err := meter.Int64Counter("memoryd.test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	require.NoError(t, tt.Shutdown(context.Background()))
	assert.False(t, tt.Health().Healthy)
}
