package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/MrWong99/voxcap/pkg/clock"
)

// Default retry parameters.
const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 800 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
)

// permanentError marks an error that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that [Retry] returns it immediately, [FallbackGroup]
// stops trying further entries and no circuit breaker counts it. Use it for
// request errors such as a clip the backend rejects as malformed.
// Permanent(nil) returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err or any error it wraps was marked with
// [Permanent].
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RetryConfig configures [Retry].
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	// Defaults to 4 if zero.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt. Attempt i (0-based)
	// waits BaseDelay·2^i plus up to BaseDelay/2 of random jitter.
	// Defaults to 800ms if zero.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Defaults to 8s if zero.
	MaxDelay time.Duration

	// Clock is used for waiting. Defaults to the system clock.
	Clock clock.Clock

	// Jitter returns a random duration in [0, n). Defaults to math/rand/v2;
	// tests substitute a deterministic source.
	Jitter func(n time.Duration) time.Duration

	// OnRetry, if set, is called before each wait with the attempt that just
	// failed (1-based), its error and the upcoming delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	if c.Jitter == nil {
		c.Jitter = func(n time.Duration) time.Duration {
			if n <= 0 {
				return 0
			}
			return rand.N(n)
		}
	}
	return c
}

// Delay returns the wait after the failed attempt with 0-based index i,
// including jitter, capped at MaxDelay.
func (c RetryConfig) Delay(i int) time.Duration {
	c = c.withDefaults()
	d := c.BaseDelay
	for range i {
		d *= 2
		if d >= c.MaxDelay {
			break
		}
	}
	d += c.Jitter(c.BaseDelay / 2)
	return min(d, c.MaxDelay)
}

// Retry calls fn until it succeeds, returns a [Permanent] error, ctx is done
// or the attempts run out. The last error is returned wrapped with the
// attempt count.
func Retry[R any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (R, error)) (R, error) {
	cfg = cfg.withDefaults()

	var (
		zero    R
		lastErr error
	)
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return zero, err
			}
			return zero, fmt.Errorf("retry: cancelled after %d attempt(s): %w", attempt-1, errors.Join(err, lastErr))
		}

		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if IsPermanent(err) || ctx.Err() != nil {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Delay(attempt - 1)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		slog.Debug("retrying after failure", "attempt", attempt, "max_attempts", cfg.MaxAttempts, "delay", delay, "error", err)
		if err := cfg.Clock.Sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry: cancelled after %d attempt(s): %w", attempt, errors.Join(err, lastErr))
		}
	}
	return zero, fmt.Errorf("retry: giving up after %d attempt(s): %w", cfg.MaxAttempts, lastErr)
}
