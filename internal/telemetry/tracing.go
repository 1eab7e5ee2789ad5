// Package telemetry sets up OpenTelemetry tracing for a run.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer used for run spans.
const TracerName = "github.com/JakeFAU/pagewatch"

// InitTracerProvider installs a global tracer provider and the W3C trace
// context propagator. Spans carry real ids so published notifications can be
// correlated with the run that produced them; no exporter is attached unless
// one is passed in opts.
func InitTracerProvider(ctx context.Context, serviceName string, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}

// StartRun opens the span covering one run.
func StartRun(ctx context.Context, runID string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "pagewatch.run",
		trace.WithAttributes(attribute.String("pagewatch.run_id", runID)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}
