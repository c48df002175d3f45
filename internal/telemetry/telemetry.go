// Package telemetry configures OpenTelemetry tracing for the hook.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const (
	serviceName     = "cdmon-dns01"
	defaultEndpoint = "localhost:4317"
)

// Setup installs a global tracer provider configured from the environment
// and returns its shutdown function, which flushes pending spans.
//
//	OTEL_EXPORTER: "none" (default), "console", "otlp" or "both"
//	OTEL_ENDPOINT: OTLP gRPC endpoint (default "localhost:4317")
//	OTEL_INSECURE: "false" enables TLS for the OTLP exporter
func Setup(ctx context.Context, version string) (func(context.Context) error, error) {
	exporterType := os.Getenv("OTEL_EXPORTER")
	if exporterType == "" {
		exporterType = "none"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporters []sdktrace.SpanExporter
	switch exporterType {
	case "none":
		// Spans are still created so the API calls stay instrumented.
	case "console":
		exp, err := consoleExporter()
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, exp)
	case "otlp":
		exp, err := otlpExporter(ctx)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, exp)
	case "both":
		cexp, err := consoleExporter()
		if err != nil {
			return nil, err
		}
		oexp, err := otlpExporter(ctx)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, cexp, oexp)
	default:
		return nil, fmt.Errorf("unknown OTEL_EXPORTER %q", exporterType)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	for _, exp := range exporters {
		tp.RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exp))
	}
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func consoleExporter() (sdktrace.SpanExporter, error) {
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create console exporter: %w", err)
	}
	return exp, nil
}

func otlpExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	endpoint := os.Getenv("OTEL_ENDPOINT")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if os.Getenv("OTEL_INSECURE") != "false" {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exp, nil
}
