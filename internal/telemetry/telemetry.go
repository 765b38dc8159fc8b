// Package telemetry wires an OTLP trace exporter when one is configured.
// Without OTEL_EXPORTER_OTLP_ENDPOINT set, setup is a no-op and the global
// tracer provider stays at its default.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const endpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

// Setup configures the global tracer provider. The returned shutdown
// function flushes pending spans; it is always safe to call.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	if os.Getenv(endpointEnv) == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
