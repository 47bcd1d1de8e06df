// Package observe provides application-wide observability primitives for
// Kotha: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Kotha metrics.
const meterName = "github.com/kothalabs/kotha"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// StageDuration tracks per-frame processing latency. Use with attribute:
	//   attribute.String("stage", ...) — "vad", "noise", "language",
	//   "command", or "pipeline" for the end-to-end path.
	StageDuration metric.Float64Histogram

	// --- Signal histograms ---

	// NoiseLevel tracks measured noise RMS levels per analyzed frame.
	NoiseLevel metric.Float64Histogram

	// --- Counters ---

	// FramesProcessed counts audio frames by pipeline stage. Use with
	// attribute: attribute.String("stage", ...)
	FramesProcessed metric.Int64Counter

	// SpeechSegments counts detected speech segments.
	SpeechSegments metric.Int64Counter

	// LanguageDetections counts language detections. Use with attributes:
	//   attribute.String("language", ...), attribute.String("method", ...)
	LanguageDetections metric.Int64Counter

	// CommandMatches counts command match attempts. Use with attributes:
	//   attribute.String("action", ...), attribute.String("status", ...)
	CommandMatches metric.Int64Counter

	// --- Error counters ---

	// StageErrors counts per-stage processing errors. Use with attribute:
	//   attribute.String("stage", ...)
	StageErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCalibrations tracks the number of currently active calibration
	// sessions.
	ActiveCalibrations metric.Int64UpDownCounter

	// ActiveSources tracks the number of open capture sources.
	ActiveSources metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for per-frame voice-pipeline latencies.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// noiseBuckets defines histogram bucket boundaries for normalized RMS noise
// levels in [0, 1].
var noiseBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StageDuration, err = m.Float64Histogram("kotha.stage.duration",
		metric.WithDescription("Per-frame processing latency by pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NoiseLevel, err = m.Float64Histogram("kotha.noise.level",
		metric.WithDescription("Measured RMS noise level per analyzed frame."),
		metric.WithExplicitBucketBoundaries(noiseBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("kotha.frames.processed",
		metric.WithDescription("Total audio frames processed by pipeline stage."),
	); err != nil {
		return nil, err
	}
	if met.SpeechSegments, err = m.Int64Counter("kotha.speech.segments",
		metric.WithDescription("Total detected speech segments."),
	); err != nil {
		return nil, err
	}
	if met.LanguageDetections, err = m.Int64Counter("kotha.language.detections",
		metric.WithDescription("Total language detections by language and method."),
	); err != nil {
		return nil, err
	}
	if met.CommandMatches, err = m.Int64Counter("kotha.command.matches",
		metric.WithDescription("Total command match attempts by action and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.StageErrors, err = m.Int64Counter("kotha.stage.errors",
		metric.WithDescription("Total processing errors by pipeline stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalibrations, err = m.Int64UpDownCounter("kotha.active_calibrations",
		metric.WithDescription("Number of currently active calibration sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSources, err = m.Int64UpDownCounter("kotha.active_sources",
		metric.WithDescription("Number of open audio capture sources."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("kotha.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame is a convenience method that records one processed frame and
// its latency for a pipeline stage.
func (m *Metrics) RecordFrame(ctx context.Context, stage string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	m.FramesProcessed.Add(ctx, 1, attrs)
	m.StageDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordLanguageDetection is a convenience method that records a language
// detection counter increment with the standard attribute set.
func (m *Metrics) RecordLanguageDetection(ctx context.Context, lang, method string) {
	m.LanguageDetections.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("language", lang),
			attribute.String("method", method),
		),
	)
}

// RecordCommandMatch is a convenience method that records a command match
// counter increment with the standard attribute set.
func (m *Metrics) RecordCommandMatch(ctx context.Context, action, status string) {
	m.CommandMatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		),
	)
}

// RecordStageError is a convenience method that records a per-stage error
// counter increment.
func (m *Metrics) RecordStageError(ctx context.Context, stage string) {
	m.StageErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
