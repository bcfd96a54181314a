package telemetry

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

// TestTelemetry is a Telemetry wired to in-memory exporters. Spans are
// captured synchronously and metrics are collected on demand, so tests
// never need a collector or an export interval.
type TestTelemetry struct {
	*Telemetry

	spans  *tracetest.InMemoryExporter
	reader *sdkmetric.ManualReader
}

// NewTestTelemetry builds an enabled Telemetry backed by in-memory
// span and metric capture. It does not touch the global providers.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	res, _ := newResource(cfg)

	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	tel := &Telemetry{
		config: cfg,
		logger: zap.NewNop(),
		tracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(spans),
			sdktrace.WithResource(res),
		),
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(reader),
			sdkmetric.WithResource(res),
		),
	}
	tel.healthy.Store(true)

	return &TestTelemetry{
		Telemetry: tel,
		spans:     spans,
		reader:    reader,
	}
}

// Spans returns all ended spans in end order.
func (tt *TestTelemetry) Spans() []tracetest.SpanStub {
	return tt.spans.GetSpans()
}

// SpanByName returns the first ended span with the given name, or nil.
func (tt *TestTelemetry) SpanByName(name string) *tracetest.SpanStub {
	for _, s := range tt.spans.GetSpans() {
		if s.Name == name {
			return &s
		}
	}
	return nil
}

// Reset discards all captured spans.
func (tt *TestTelemetry) Reset() {
	tt.spans.Reset()
}

// Collect drains current metric state from the manual reader.
func (tt *TestTelemetry) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := tt.reader.Collect(ctx, &rm)
	return rm, err
}

// AssertSpanExists fails the test if no ended span has the given name.
func (tt *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if tt.SpanByName(name) == nil {
		tb.Errorf("span %q not recorded; have %v", name, tt.spanNames())
	}
}

// AssertSpanAttribute fails the test unless the named span carries the
// attribute with the given value.
func (tt *TestTelemetry) AssertSpanAttribute(tb testing.TB, spanName, key string, want any) {
	tb.Helper()

	span := tt.SpanByName(spanName)
	if span == nil {
		tb.Errorf("span %q not recorded; have %v", spanName, tt.spanNames())
		return
	}

	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			if got := attr.Value.AsInterface(); got != want {
				tb.Errorf("span %q attribute %q = %v, want %v", spanName, key, got, want)
			}
			return
		}
	}
	tb.Errorf("span %q has no attribute %q", spanName, key)
}

// AssertMetricExists fails the test if no instrument with the given
// name has recorded data.
func (tt *TestTelemetry) AssertMetricExists(tb testing.TB, name string) {
	tb.Helper()

	rm, err := tt.Collect(context.Background())
	if err != nil {
		tb.Fatalf("collecting metrics: %v", err)
	}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return
			}
		}
	}
	tb.Errorf("metric %q not recorded", name)
}

func (tt *TestTelemetry) spanNames() []string {
	spans := tt.spans.GetSpans()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name)
	}
	return names
}
