// Package observe provides application-wide observability primitives for
// voxcap: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all voxcap metrics.
const meterName = "github.com/MrWong99/voxcap"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture ---

	// CaptureSessions counts finished capture requests. Use with attribute:
	//   attribute.String("stop_reason", ...)
	CaptureSessions metric.Int64Counter

	// CaptureDuration tracks the recorded duration of each session, before
	// padding and post-processing.
	CaptureDuration metric.Float64Histogram

	// OnsetLatency tracks the time from recording start to speech onset.
	OnsetLatency metric.Float64Histogram

	// EnergyReadErrors counts energy readings that failed and were treated
	// as silence.
	EnergyReadErrors metric.Int64Counter

	// StageOutcomes counts post-processing stage results. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("outcome", "applied"|"skipped")
	StageOutcomes metric.Int64Counter

	// ActiveCaptures tracks the number of running capture requests.
	ActiveCaptures metric.Int64UpDownCounter

	// --- Transcription ---

	// STTDuration tracks speech-to-text transcription latency, retries
	// included.
	STTDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// UploadsRejected counts clips that failed upload validation. Use with
	// attribute:
	//   attribute.String("reason", ...)
	UploadsRejected metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("provider", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- MCP ---

	// ToolCalls counts MCP tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// request and transcription latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// captureBuckets covers utterance lengths from a short command up to
// long-form dictation.
var captureBuckets = []float64{
	0.25, 0.5, 1, 2, 3, 5, 8, 12, 20, 30, 60, 120, 300, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Capture.
	if met.CaptureSessions, err = m.Int64Counter("voxcap.capture.sessions",
		metric.WithDescription("Total capture requests by stop reason."),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("voxcap.capture.duration",
		metric.WithDescription("Recorded duration of capture sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(captureBuckets...),
	); err != nil {
		return nil, err
	}
	if met.OnsetLatency, err = m.Float64Histogram("voxcap.capture.onset_latency",
		metric.WithDescription("Time from recording start to speech onset."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(captureBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EnergyReadErrors, err = m.Int64Counter("voxcap.capture.energy_read_errors",
		metric.WithDescription("Energy readings that failed and were treated as silence."),
	); err != nil {
		return nil, err
	}
	if met.StageOutcomes, err = m.Int64Counter("voxcap.dsp.stage_outcomes",
		metric.WithDescription("Post-processing stage results by stage and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCaptures, err = m.Int64UpDownCounter("voxcap.capture.active",
		metric.WithDescription("Number of running capture requests."),
	); err != nil {
		return nil, err
	}

	// Transcription.
	if met.STTDuration, err = m.Float64Histogram("voxcap.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("voxcap.provider.requests",
		metric.WithDescription("Total provider API requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.UploadsRejected, err = m.Int64Counter("voxcap.upload.rejected",
		metric.WithDescription("Clips rejected by upload validation, by reason."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("voxcap.provider.breaker_transitions",
		metric.WithDescription("Circuit breaker state changes by provider and target state."),
	); err != nil {
		return nil, err
	}

	// MCP.
	if met.ToolCalls, err = m.Int64Counter("voxcap.tool.calls",
		metric.WithDescription("Total MCP tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxcap.http.request.duration",
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

// CaptureRecord is the per-session data recorded by [Metrics.RecordCapture].
type CaptureRecord struct {
	StopReason string
	Captured   time.Duration

	// OnsetAfter is negative when no onset happened.
	OnsetAfter time.Duration
	ReadErrors int
}

// RecordCapture records the metrics of one finished capture session.
func (m *Metrics) RecordCapture(ctx context.Context, rec CaptureRecord) {
	m.CaptureSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("stop_reason", rec.StopReason)))
	m.CaptureDuration.Record(ctx, rec.Captured.Seconds())
	if rec.OnsetAfter >= 0 {
		m.OnsetLatency.Record(ctx, rec.OnsetAfter.Seconds())
	}
	if rec.ReadErrors > 0 {
		m.EnergyReadErrors.Add(ctx, int64(rec.ReadErrors))
	}
}

// RecordStage records one post-processing stage outcome. It has the shape
// of a stage observer callback once bound to a context.
func (m *Metrics) RecordStage(ctx context.Context, stage string, changed bool) {
	outcome := "skipped"
	if changed {
		outcome = "applied"
	}
	m.StageOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordUploadRejected records a clip that failed upload validation.
func (m *Metrics) RecordUploadRejected(ctx context.Context, reason string) {
	m.UploadsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("to", to),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}
