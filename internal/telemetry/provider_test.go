package telemetry

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewResource(t *testing.T) {
	cfg := NewDefaultConfig()

	res, err := newResource(cfg)
	require.NoError(t, err)
	require.NotNil(t, res)

	attrs := map[string]string{}
	for _, attr := range res.Attributes() {
		attrs[string(attr.Key)] = attr.Value.AsString()
	}
	assert.Equal(t, cfg.ServiceName, attrs["service.name"])
	assert.Equal(t, cfg.ServiceVersion, attrs["service.version"])
}

func TestStripScheme(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost:4317", "localhost:4317"},
		{"http://localhost:4318", "localhost:4318"},
		{"https://collector.prod:4318", "collector.prod:4318"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, stripScheme(tt.in))
	}
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", samplerFor(1.0).Description())
	assert.Equal(t, "AlwaysOnSampler", samplerFor(2.0).Description())
	assert.Equal(t, "AlwaysOffSampler", samplerFor(0).Description())
	assert.Contains(t, samplerFor(0.5).Description(), "TraceIDRatioBased")
}

func TestNewTracerProvider_ExporterOverride(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	res, err := newResource(cfg)
	require.NoError(t, err)

	exp := tracetest.NewInMemoryExporter()
	tp, err := newTracerProvider(context.Background(), cfg, res, WithTraceExporter(exp))
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := tp.Tracer("test").Start(context.Background(), "override-span")
	span.End()

	// Batcher flushes on shutdown.
	require.NoError(t, tp.Shutdown(context.Background()))
	require.Len(t, exp.GetSpans(), 1)
	assert.Equal(t, "override-span", exp.GetSpans()[0].Name)
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Metrics.Enabled = false

	res, err := newResource(cfg)
	require.NoError(t, err)

	mp, err := newMeterProvider(context.Background(), cfg, res)
	require.NoError(t, err)
	assert.Nil(t, mp)
}

func TestNewMeterProvider_ExporterOverride(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	res, err := newResource(cfg)
	require.NoError(t, err)

	exp := &countingMetricExporter{}
	mp, err := newMeterProvider(context.Background(), cfg, res, WithMetricExporter(exp))
	require.NoError(t, err)
	require.NotNil(t, mp)

	counter, err := mp.Meter("test").Int64Counter("memoryd.test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	require.NoError(t, mp.ForceFlush(context.Background()))
	assert.Positive(t, exp.exports.Load())

	require.NoError(t, mp.Shutdown(context.Background()))
}

// countingMetricExporter counts Export calls and discards the data.
type countingMetricExporter struct {
	exports atomic.Int64
}

func (e *countingMetricExporter) Temporality(sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (e *countingMetricExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

func (e *countingMetricExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	e.exports.Add(1)
	return nil
}

func (e *countingMetricExporter) ForceFlush(context.Context) error { return nil }

func (e *countingMetricExporter) Shutdown(context.Context) error { return nil }
