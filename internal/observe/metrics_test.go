package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the int64 sum data point whose attributes
// contain all of want. ok is false when no such point exists.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name string, want ...attribute.KeyValue) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		match := true
		for _, kv := range want {
			v, found := dp.Attributes.Value(kv.Key)
			if !found || v.Emit() != kv.Value.Emit() {
				match = false
				break
			}
		}
		if match {
			return dp.Value, true
		}
	}
	return 0, false
}

// histogramCount returns the total sample count of a float64 histogram.
func histogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q is not a histogram", name)
	}
	var n uint64
	for _, dp := range hist.DataPoints {
		n += dp.Count
	}
	return n
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"voxcap.capture.duration", m.CaptureDuration},
		{"voxcap.capture.onset_latency", m.OnsetLatency},
		{"voxcap.stt.duration", m.STTDuration},
		{"voxcap.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			if got := histogramCount(t, rm, tc.name); got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordCapture(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCapture(ctx, CaptureRecord{StopReason: "silence_timeout", Captured: 3 * time.Second, OnsetAfter: 400 * time.Millisecond})
	m.RecordCapture(ctx, CaptureRecord{StopReason: "silence_timeout", Captured: 2 * time.Second, OnsetAfter: time.Second, ReadErrors: 2})
	m.RecordCapture(ctx, CaptureRecord{StopReason: "no_speech", Captured: 5 * time.Second, OnsetAfter: -1})

	rm := collect(t, reader)

	if got, ok := sumWhere(t, rm, "voxcap.capture.sessions", Attr("stop_reason", "silence_timeout")); !ok || got != 2 {
		t.Errorf("silence_timeout sessions = %d (found %v), want 2", got, ok)
	}
	if got, ok := sumWhere(t, rm, "voxcap.capture.sessions", Attr("stop_reason", "no_speech")); !ok || got != 1 {
		t.Errorf("no_speech sessions = %d (found %v), want 1", got, ok)
	}
	if got := histogramCount(t, rm, "voxcap.capture.duration"); got != 3 {
		t.Errorf("capture duration samples = %d, want 3", got)
	}
	// Sessions without onset are not part of the latency distribution.
	if got := histogramCount(t, rm, "voxcap.capture.onset_latency"); got != 2 {
		t.Errorf("onset latency samples = %d, want 2", got)
	}
	if got, ok := sumWhere(t, rm, "voxcap.capture.energy_read_errors"); !ok || got != 2 {
		t.Errorf("energy read errors = %d, want 2", got)
	}
}

func TestRecordStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "trim", true)
	m.RecordStage(ctx, "trim", true)
	m.RecordStage(ctx, "noise_gate", false)

	rm := collect(t, reader)
	tests := []struct {
		stage, outcome string
		want           int64
	}{
		{"trim", "applied", 2},
		{"noise_gate", "skipped", 1},
	}
	for _, tt := range tests {
		got, ok := sumWhere(t, rm, "voxcap.dsp.stage_outcomes", Attr("stage", tt.stage), Attr("outcome", tt.outcome))
		if !ok || got != tt.want {
			t.Errorf("%s/%s = %d (found %v), want %d", tt.stage, tt.outcome, got, ok, tt.want)
		}
	}
}

func TestCounterIncrement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "whisper", "ok")
	m.RecordProviderRequest(ctx, "whisper", "ok")
	m.RecordProviderRequest(ctx, "whisper", "error")
	m.RecordUploadRejected(ctx, "too_short")
	m.RecordBreakerTransition(ctx, "whisper", "open")
	m.RecordToolCall(ctx, "listen", "ok")

	rm := collect(t, reader)

	tests := []struct {
		metric string
		attrs  []attribute.KeyValue
		want   int64
	}{
		{"voxcap.provider.requests", []attribute.KeyValue{Attr("provider", "whisper"), Attr("status", "ok")}, 2},
		{"voxcap.provider.requests", []attribute.KeyValue{Attr("status", "error")}, 1},
		{"voxcap.upload.rejected", []attribute.KeyValue{Attr("reason", "too_short")}, 1},
		{"voxcap.provider.breaker_transitions", []attribute.KeyValue{Attr("to", "open")}, 1},
		{"voxcap.tool.calls", []attribute.KeyValue{Attr("tool", "listen")}, 1},
	}
	for _, tt := range tests {
		got, ok := sumWhere(t, rm, tt.metric, tt.attrs...)
		if !ok || got != tt.want {
			t.Errorf("%s%v = %d (found %v), want %d", tt.metric, tt.attrs, got, ok, tt.want)
		}
	}
}

func TestActiveCaptures(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveCaptures.Add(ctx, 1)
	m.ActiveCaptures.Add(ctx, 1)
	m.ActiveCaptures.Add(ctx, -1)

	rm := collect(t, reader)
	if got, ok := sumWhere(t, rm, "voxcap.capture.active"); !ok || got != 1 {
		t.Errorf("active captures = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
