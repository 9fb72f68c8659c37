package pool

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fileIngestor/queue"
)

const tracerName = "fileIngestor/worker"

// Tracing wraps handler in a span per task using the global TracerProvider.
// With no provider configured the span is a noop.
func Tracing(handler Handler) Handler {
	return TracingWithTracer(otel.Tracer(tracerName), handler)
}

func TracingWithTracer(tracer trace.Tracer, handler Handler) Handler {
	return func(ctx context.Context, task *queue.Task) error {
		ctx, span := tracer.Start(ctx, "file.process",
			trace.WithAttributes(
				attribute.String("file.job_id", task.JobID),
				attribute.String("file.name", task.Filename),
				attribute.Int("file.size", len(task.Content)),
				attribute.String("file.trace_id", task.TraceID),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := handler(ctx, task)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
