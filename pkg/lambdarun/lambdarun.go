// Package lambdarun holds the process setup shared by the Lambda entry
// points: JSON logging, tracing and a per-invocation status drain.
package lambdarun

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nebari-dev/eks-ingress-stack/pkg/status"
	"github.com/nebari-dev/eks-ingress-stack/pkg/telemetry"
)

// HandlerFunc serves one custom resource event
type HandlerFunc[R any] func(ctx context.Context, event cfn.Event) (R, error)

// NewLogger returns the JSON logger every function writes to stdout
func NewLogger(serviceName string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With("service", serviceName)
}

// Start configures tracing, then hands handle to the Lambda runtime. Callers
// install NewLogger as the default logger first. Start does not return.
func Start[R any](serviceName string, handle func(context.Context, cfn.Event) (R, error)) {
	logger := slog.Default()

	ctx := context.Background()
	_, shutdown, flush, err := telemetry.Setup(ctx, serviceName)
	if err != nil {
		slog.Error("Failed to setup telemetry", "error", err)
		os.Exit(1)
	}

	lambda.StartWithOptions(
		Wrap(serviceName, logger, flush, handle),
		lambda.WithEnableSIGTERM(func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Error("Failed to shutdown telemetry", "error", err)
			}
		}),
	)
}

// Wrap decorates handle with a request-scoped logger, a status drain and a
// root span. Buffered spans are flushed before the invocation returns since
// the sandbox may be frozen right after.
func Wrap[R any](serviceName string, logger *slog.Logger, flush func(context.Context) error, handle func(context.Context, cfn.Event) (R, error)) HandlerFunc[R] {
	return func(ctx context.Context, event cfn.Event) (R, error) {
		requestLogger := logger
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			requestLogger = logger.With("request_id", lc.AwsRequestID)
		}
		requestLogger = requestLogger.With(
			"stack_id", event.StackID,
			"logical_resource_id", event.LogicalResourceID,
		)

		tracer := otel.Tracer("eks-ingress-stack")
		ctx, span := tracer.Start(ctx, serviceName+".invoke")
		span.SetAttributes(
			attribute.String("request_type", string(event.RequestType)),
			attribute.String("resource_type", event.ResourceType),
		)

		ctx, cleanupStatus := status.StartHandler(ctx, status.LogHandler(requestLogger))

		requestLogger.Info("Handling event", "request_type", event.RequestType, "resource_type", event.ResourceType)

		resp, err := handle(ctx, event)
		if err != nil {
			span.RecordError(err)
			requestLogger.Error("Event failed", "request_type", event.RequestType, "error", err)
		} else {
			requestLogger.Info("Event handled", "request_type", event.RequestType)
		}

		cleanupStatus()
		span.End()

		if flush != nil {
			if flushErr := flush(ctx); flushErr != nil {
				requestLogger.Warn("Failed to flush traces", "error", flushErr)
			}
		}

		return resp, err
	}
}
