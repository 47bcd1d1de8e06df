package observe

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// routeLabel collapses the id segment of the /v1 resource routes so span
// names and metric attributes stay low-cardinality: /v1/profiles/alice
// becomes /v1/profiles/{id}, /v1/calibration/8f1c.../samples becomes
// /v1/calibration/{id}/samples. Fixed routes and non-API paths
// (/healthz, /metrics, /v1/input, /v1/profiles/export, ...) pass through
// unchanged.
func routeLabel(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) < 4 || parts[1] != "v1" {
		return path
	}
	switch parts[2] {
	case "profiles":
		if parts[3] == "export" {
			return path
		}
		parts[3] = "{id}"
	case "calibration":
		parts[3] = "{id}"
	default:
		return path
	}
	return strings.Join(parts, "/")
}

// statusRecorder wraps [http.ResponseWriter] to capture the status code
// written by the downstream handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware wraps the daemon's HTTP surface with the telemetry every
// request shares: a server span continuing any incoming W3C trace
// context, an X-Correlation-ID response header derived from the trace ID,
// the [Metrics.HTTPRequestDuration] histogram, and a completion log line
// through [Logger] so log entries carry trace and span ids. Path ids are
// collapsed by routeLabel before they reach span names or attributes.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeLabel(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(route),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			elapsed := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("route", route),
				),
			)
			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.status))

			Logger(ctx).LogAttrs(ctx, slog.LevelInfo, "request served",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", rec.status),
				slog.Duration("elapsed", elapsed),
			)
		})
	}
}
