package missioncontrol

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry instruments a Mission Control operation from start to finish,
// grounded on observability.go's Provider.TrackOperation: a single call
// that starts a span and RED metrics and returns a completion callback
// carrying the operation's error, if any.
type Telemetry interface {
	TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error))
}

// otelTelemetry is a Telemetry backed by a caller-supplied tracer/meter
// pair. No OTLP exporter is constructed here — the kernel has no network
// dependency of its own; the host process wires sdktrace/sdkmetric
// providers and hands this constructor their Tracer()/Meter(), exactly as
// observability.New's Provider is built and threaded through by its
// callers.
type otelTelemetry struct {
	tracer           trace.Tracer
	requestCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	durationHist     metric.Float64Histogram
	activeOperations metric.Int64UpDownCounter
}

// NewOTelTelemetry builds a Telemetry from an existing tracer and meter.
func NewOTelTelemetry(tracer trace.Tracer, meter metric.Meter) (Telemetry, error) {
	t := &otelTelemetry{tracer: tracer}
	var err error

	t.requestCounter, err = meter.Int64Counter("aegis.requests.total",
		metric.WithDescription("total mission control operations processed"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("build request counter: %w", err)
	}
	t.errorCounter, err = meter.Int64Counter("aegis.errors.total",
		metric.WithDescription("total mission control operations that errored"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("build error counter: %w", err)
	}
	t.durationHist, err = meter.Float64Histogram("aegis.operation.duration",
		metric.WithDescription("mission control operation duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("build duration histogram: %w", err)
	}
	t.activeOperations, err = meter.Int64UpDownCounter("aegis.operations.active",
		metric.WithDescription("mission control operations currently in flight"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("build active operations gauge: %w", err)
	}
	return t, nil
}

func (t *otelTelemetry) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
	t.activeOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
	t.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	return ctx, func(err error) {
		t.activeOperations.Add(ctx, -1, metric.WithAttributes(attrs...))
		t.durationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		if err != nil {
			span.RecordError(err)
			errAttrs := append(append([]attribute.KeyValue(nil), attrs...), attribute.String("error.type", fmt.Sprintf("%T", err)))
			t.errorCounter.Add(ctx, 1, metric.WithAttributes(errAttrs...))
		}
		span.End()
	}
}

type noopTelemetry struct{}

// NewNoopTelemetry returns a Telemetry whose TrackOperation is a pure
// pass-through — the zero-value default for a kernel instance that hasn't
// been handed a tracer/meter by its host process.
func NewNoopTelemetry() Telemetry { return noopTelemetry{} }

func (noopTelemetry) TrackOperation(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, func(error)) {
	return ctx, func(error) {}
}
