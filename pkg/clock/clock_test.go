package clock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/voxcap/pkg/clock"
	"github.com/MrWong99/voxcap/pkg/clock/mock"
)

func TestReal_SleepCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := clock.Real{}.Sleep(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled sleep did not return promptly")
	}
}

func TestReal_SleepShort(t *testing.T) {
	t.Parallel()
	if err := (clock.Real{}).Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMock_SleepAdvances(t *testing.T) {
	t.Parallel()
	c := mock.New()
	for range 3 {
		if err := c.Sleep(context.Background(), 50*time.Millisecond); err != nil {
			t.Fatalf("Sleep: %v", err)
		}
	}
	if got := c.Elapsed(); got != 150*time.Millisecond {
		t.Errorf("elapsed = %v, want 150ms", got)
	}
	if got := clock.Since(c, mock.Epoch); got != 150*time.Millisecond {
		t.Errorf("Since = %v, want 150ms", got)
	}
	if n := len(c.Sleeps()); n != 3 {
		t.Errorf("sleeps = %d, want 3", n)
	}
}

func TestMock_OnSleepCancels(t *testing.T) {
	t.Parallel()
	c := mock.New()
	ctx, cancel := context.WithCancel(context.Background())
	c.OnSleep = func(now time.Time) {
		if now.Sub(mock.Epoch) >= 100*time.Millisecond {
			cancel()
		}
	}
	var err error
	for err == nil {
		err = c.Sleep(ctx, 50*time.Millisecond)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := c.Elapsed(); got != 100*time.Millisecond {
		t.Errorf("elapsed = %v, want 100ms", got)
	}
}
