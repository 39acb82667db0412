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
	"go.opentelemetry.io/otel/trace"
)

const serviceVersion = "1.0.0"

// Setup initializes OpenTelemetry based on environment configuration.
// OTEL_EXPORTER: "none" (default), "console", "otlp", or "both"
// OTEL_ENDPOINT: OTLP endpoint (default: "localhost:4317")
//
// The returned flush function exports buffered spans without shutting the
// provider down; Lambda handlers call it before each invocation returns.
func Setup(ctx context.Context, serviceName string) (trace.Tracer, func(context.Context) error, func(context.Context) error, error) {
	exporterType := os.Getenv("OTEL_EXPORTER")
	if exporterType == "" {
		exporterType = "none"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporters, err := newExporters(ctx, exporterType)
	if err != nil {
		return nil, nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
	)
	for _, exporter := range exporters {
		tp.RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
	}

	otel.SetTracerProvider(tp)

	return tp.Tracer(serviceName), tp.Shutdown, tp.ForceFlush, nil
}

func newExporters(ctx context.Context, exporterType string) ([]sdktrace.SpanExporter, error) {
	var exporters []sdktrace.SpanExporter

	switch exporterType {
	case "none":
		// Spans are still created so error recording works, but nothing leaves the process
	case "console":
		console, err := consoleExporter()
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, console)
	case "otlp":
		otlp, err := otlpExporter(ctx)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, otlp)
	case "both":
		console, err := consoleExporter()
		if err != nil {
			return nil, err
		}
		otlp, err := otlpExporter(ctx)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, console, otlp)
	default:
		return nil, fmt.Errorf("invalid OTEL_EXPORTER %q, must be one of: none, console, otlp, both", exporterType)
	}

	return exporters, nil
}

// consoleExporter writes to stderr so spans never interleave with command
// output or the JSON log stream on stdout.
func consoleExporter() (sdktrace.SpanExporter, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create console exporter: %w", err)
	}
	return exporter, nil
}

func otlpExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	endpoint := os.Getenv("OTEL_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if os.Getenv("OTEL_INSECURE") != "false" {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}
