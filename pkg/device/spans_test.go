package device_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/voxcap/pkg/audio"
	"github.com/MrWong99/voxcap/pkg/device"
)

func TestSpans(t *testing.T) {
	t.Parallel()
	var s device.Spans
	t0 := time.Unix(1000, 0)
	f := audio.Format{SampleRate: 16000, Channels: 1}

	if s.Stop(t0) {
		t.Error("Stop on idle spans should report false")
	}

	s.Start(t0, "a.wav", f)
	if _, err := s.Get("a.wav"); err == nil {
		t.Error("Get on an open span should fail")
	}

	// Starting again closes the first span.
	s.Start(t0.Add(time.Second), "b.wav", f)
	a, err := s.Get("a.wav")
	if err != nil {
		t.Fatalf("Get(a): %v", err)
	}
	if got := a.Stop.Sub(a.Start); got != time.Second {
		t.Errorf("span a = %v, want 1s", got)
	}

	if !s.Stop(t0.Add(3 * time.Second)) {
		t.Error("Stop should report an open span")
	}
	b, err := s.Get("b.wav")
	if err != nil {
		t.Fatalf("Get(b): %v", err)
	}
	if got := b.Stop.Sub(b.Start); got != 2*time.Second {
		t.Errorf("span b = %v, want 2s", got)
	}

	if _, err := s.Get("c.wav"); !errors.Is(err, device.ErrUnknownDestination) {
		t.Errorf("expected ErrUnknownDestination, got %v", err)
	}
}
