package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestInitProvider_UsesMetricReader(t *testing.T) {
	origMP := otel.GetMeterProvider()
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	reader := sdkmetric.NewManualReader()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion:   "test",
		TraceSampleRatio: 0.5,
		MetricReader:     reader,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordUploadRejected(context.Background(), "invalid_wav")

	rm := collect(t, reader)
	if got, ok := sumWhere(t, rm, "voxcap.upload.rejected", Attr("reason", "invalid_wav")); !ok || got != 1 {
		t.Errorf("upload rejected = %d (found %v), want 1", got, ok)
	}
	attrs := map[string]string{}
	for _, kv := range rm.Resource.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	for key, want := range map[string]string{
		"service.name":       "voxcap",
		"service.version":    "test",
		"telemetry.sdk.name": "opentelemetry",
	} {
		if got := attrs[key]; got != want {
			t.Errorf("resource %s = %q, want %q", key, got, want)
		}
	}
	if rm.Resource.SchemaURL() == "" {
		t.Error("resource lost the SDK schema URL")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
