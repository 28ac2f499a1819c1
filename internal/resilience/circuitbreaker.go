// Package resilience keeps transcription working when backends misbehave.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open) that
// stops hammering a backend after repeated failures. [FallbackGroup] chains
// several instances of a provider type, each behind its own breaker, and
// [STTFallback] applies that to speech-to-text. [Retry] re-runs an operation
// with exponential backoff and jitter.
//
// Context cancellation and [Permanent] errors are never counted as backend
// failures and never trigger failover or retries.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxcap/pkg/clock"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state; all calls are forwarded.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the maximum number of probe calls allowed in the half-open
	// state before the breaker decides whether to close or re-open. Default: 3.
	HalfOpenMax int

	// Clock drives the reset timeout. Default: the system clock.
	Clock clock.Clock

	// OnStateChange, if set, is called (without the breaker's lock held)
	// after every transition.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	clk           clock.Clock
	onStateChange func(name string, from, to State)

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	halfOpenCalls   int
	halfOpenOK      int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		clk:           cfg.Clock,
		onStateChange: cfg.OnStateChange,
		state:         StateClosed,
	}
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. Errors for which [countsAsFailure]
// is false are returned but leave the breaker's counters untouched.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	var changed []transition
	switch cb.state {
	case StateOpen:
		if clock.Since(cb.clk, cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		changed = append(changed, cb.setState(StateHalfOpen))
		cb.halfOpenCalls = 0
		cb.halfOpenOK = 0

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMax {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	inHalfOpen := cb.state == StateHalfOpen
	if inHalfOpen {
		cb.halfOpenCalls++
	}
	cb.mu.Unlock()
	cb.notify(changed)

	err := fn()

	cb.mu.Lock()
	changed = changed[:0]
	switch {
	case err == nil:
		changed = cb.recordSuccess(inHalfOpen)
	case countsAsFailure(err):
		changed = cb.recordFailure(inHalfOpen)
	case inHalfOpen:
		// Give the probe slot back; the backend was never judged.
		cb.halfOpenCalls--
	}
	cb.mu.Unlock()
	cb.notify(changed)
	return err
}

type transition struct{ from, to State }

// setState must be called with cb.mu held.
func (cb *CircuitBreaker) setState(to State) transition {
	tr := transition{from: cb.state, to: to}
	cb.state = to
	return tr
}

func (cb *CircuitBreaker) notify(trs []transition) {
	for _, tr := range trs {
		slog.Info("circuit breaker state change", "name", cb.name, "from", tr.from.String(), "to", tr.to.String())
		if cb.onStateChange != nil {
			cb.onStateChange(cb.name, tr.from, tr.to)
		}
	}
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(inHalfOpen bool) []transition {
	if inHalfOpen {
		if cb.state != StateHalfOpen {
			return nil
		}
		cb.openedAt = cb.clk.Now()
		cb.consecutiveFail = cb.maxFailures
		return []transition{cb.setState(StateOpen)}
	}

	cb.consecutiveFail++
	if cb.state == StateClosed && cb.consecutiveFail >= cb.maxFailures {
		cb.openedAt = cb.clk.Now()
		slog.Warn("circuit breaker opened", "name", cb.name, "consecutive_failures", cb.consecutiveFail)
		return []transition{cb.setState(StateOpen)}
	}
	return nil
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(inHalfOpen bool) []transition {
	if !inHalfOpen {
		cb.consecutiveFail = 0
		return nil
	}
	if cb.state != StateHalfOpen {
		return nil
	}
	cb.halfOpenOK++
	if cb.halfOpenOK >= cb.halfOpenMax {
		cb.consecutiveFail = 0
		cb.halfOpenCalls = 0
		cb.halfOpenOK = 0
		return []transition{cb.setState(StateClosed)}
	}
	return nil
}

// State returns the current [State] of the breaker. If the breaker is open and
// the reset timeout has elapsed, the returned state is [StateHalfOpen] (the
// actual transition happens on the next [CircuitBreaker.Execute] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && clock.Since(cb.clk, cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset manually forces the breaker back to [StateClosed], clearing all failure
// counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	tr := cb.setState(StateClosed)
	cb.consecutiveFail = 0
	cb.halfOpenCalls = 0
	cb.halfOpenOK = 0
	cb.mu.Unlock()
	if tr.from != tr.to {
		cb.notify([]transition{tr})
	}
}

// countsAsFailure reports whether err says something about the backend's
// health. Cancellation by the caller and permanent request errors do not.
func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!IsPermanent(err)
}
