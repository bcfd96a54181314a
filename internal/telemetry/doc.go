// Package telemetry wires OpenTelemetry tracing and metrics for memoryd.
//
// A single Telemetry instance owns the tracer and meter providers and
// exports both over OTLP, speaking gRPC by default or http/protobuf
// when configured. It is built once at startup and handed to the
// packages that instrument themselves:
//
//	tel, err := telemetry.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	tracer := tel.Tracer("memoryd/index")
//	ctx, span := tracer.Start(ctx, "index.search")
//	defer span.End()
//
// Telemetry is best effort. A disabled config yields no-op providers,
// and exporter failures degrade the instance (visible via Health)
// rather than failing startup. Insecure export is refused for
// non-loopback endpoints.
//
// Tests use NewTestTelemetry, which captures spans synchronously in
// memory and collects metrics on demand, so assertions need neither a
// collector nor a wait.
package telemetry
