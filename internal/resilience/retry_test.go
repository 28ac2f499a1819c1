package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	clockmock "github.com/MrWong99/voxcap/pkg/clock/mock"
)

func noJitter(time.Duration) time.Duration { return 0 }

func TestRetryConfig_Delay(t *testing.T) {
	t.Parallel()
	cfg := RetryConfig{BaseDelay: 800 * time.Millisecond, MaxDelay: 8 * time.Second, Jitter: noJitter}
	want := []time.Duration{
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		6400 * time.Millisecond,
		8 * time.Second,
		8 * time.Second,
	}
	for i, w := range want {
		if got := cfg.Delay(i); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestRetryConfig_DelayJitterBounds(t *testing.T) {
	t.Parallel()
	cfg := RetryConfig{BaseDelay: 800 * time.Millisecond, MaxDelay: 8 * time.Second}
	for range 200 {
		d := cfg.Delay(1)
		if d < 1600*time.Millisecond || d >= 2000*time.Millisecond {
			t.Fatalf("Delay(1) = %v, want in [1.6s, 2s)", d)
		}
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()
	clk := clockmock.New()
	var retries []int
	cfg := RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   100 * time.Millisecond,
		Clock:       clk,
		Jitter:      noJitter,
		OnRetry:     func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) },
	}

	calls := 0
	got, err := Retry(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTest
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("Retry = (%q, %v)", got, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	sleeps := clk.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 100*time.Millisecond || sleeps[1] != 200*time.Millisecond {
		t.Errorf("sleeps = %v, want [100ms 200ms]", sleeps)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("OnRetry attempts = %v", retries)
	}
}

func TestRetry_GivesUp(t *testing.T) {
	t.Parallel()
	clk := clockmock.New()
	calls := 0
	_, err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, Clock: clk, Jitter: noJitter},
		func(context.Context) (int, error) {
			calls++
			return 0, errTest
		})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want errTest", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if n := len(clk.Sleeps()); n != 2 {
		t.Errorf("slept %d times, want 2", n)
	}
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Retry(context.Background(), RetryConfig{Clock: clockmock.New()},
		func(context.Context) (int, error) {
			calls++
			return 0, Permanent(errTest)
		})
	if !errors.Is(err, errTest) || !IsPermanent(err) {
		t.Fatalf("err = %v, want permanent errTest", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()
	clk := clockmock.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk.OnSleep = func(time.Time) { cancel() }

	calls := 0
	_, err := Retry(ctx, RetryConfig{Clock: clk, Jitter: noJitter}, func(context.Context) (int, error) {
		calls++
		return 0, errTest
	})
	if !errors.Is(err, context.Canceled) || !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want both context.Canceled and errTest", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPermanent_Nil(t *testing.T) {
	t.Parallel()
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	if IsPermanent(errTest) {
		t.Error("plain error reported as permanent")
	}
}
