package pool

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"fileIngestor/queue"
)

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func TestTracing_SpanPerTask(t *testing.T) {
	sr, tracer := setupTestTracer()
	h := TracingWithTracer(tracer, func(context.Context, *queue.Task) error { return nil })

	task := &queue.Task{JobID: "job-1", Filename: "a.txt", Content: []byte("abc")}
	if err := h(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "file.process" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", spans[0].Status().Code)
	}

	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["file.job_id"] != "job-1" || attrs["file.size"] != int64(3) {
		t.Errorf("unexpected attributes: %v", attrs)
	}
}

func TestTracing_RecordsError(t *testing.T) {
	sr, tracer := setupTestTracer()
	boom := errors.New("store unavailable")
	h := TracingWithTracer(tracer, func(context.Context, *queue.Task) error { return boom })

	if err := h(context.Background(), &queue.Task{JobID: "job-2"}); !errors.Is(err, boom) {
		t.Fatalf("expected handler error to pass through, got %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Fatalf("expected one errored span, got %+v", spans)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected the error to be recorded as a span event")
	}
}
