package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope shared by every kotha span.
const tracerName = "github.com/kothalabs/kotha"

// Tracer returns the kotha [trace.Tracer] from the globally registered
// [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span under the kotha tracer. The caller must call
// span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartStageSpan starts a span covering one unit of pipeline work, named
// "pipeline/<stage>" and tagged with the same stage attribute the metric
// instruments use, so traces and metrics slice along the same dimension.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "pipeline/"+stage,
		trace.WithAttributes(attribute.String("stage", stage)))
}

// CorrelationID returns the active trace ID from ctx, or the empty string
// when no span with a valid trace ID is present. The trace ID doubles as
// the correlation identifier surfaced in logs and in the X-Correlation-ID
// response header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns an [slog.Logger] carrying the trace_id and span_id of the
// active span in ctx. Without an active span it is simply the default
// logger.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
