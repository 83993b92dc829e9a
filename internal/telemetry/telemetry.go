// Package telemetry wires up structured logging and a zero-config
// OpenTelemetry tracer/meter pair for the pipeline's ambient observability
// stack (§6).
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	stdoutmetric "go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds a slog.Logger writing to w, JSON-formatted when
// jsonOutput is set and human-readable text otherwise, mirroring the
// text-handler-by-default-for-tests, JSON-for-production split the teacher
// uses across its daemon logging call sites.
func NewLogger(w io.Writer, jsonOutput bool, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Providers bundles the tracer/meter providers a component needs, plus a
// Shutdown that flushes and releases both.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	shutdownFuncs  []func(context.Context) error
}

// Shutdown flushes and closes every provider, returning the first error
// encountered.
func (p *Providers) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Bootstrap stands up a zero-config tracer/meter pair, exporting spans and
// metrics to stdout. This is the same "keep it zero-config, let callers
// layer on real exporters later" posture as the teacher's OTEL metrics
// bridge; production deployments swap the stdout exporters for OTLP ones
// without touching call sites, since everything is consumed through the
// otel.Tracer/otel.Meter global accessors.
func Bootstrap(serviceName string) (*Providers, error) {
	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		shutdownFuncs: []func(context.Context) error{
			tp.Shutdown,
			mp.Shutdown,
		},
	}, nil
}
