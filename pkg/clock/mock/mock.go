// Package mock provides a deterministic [clock.Clock] for tests.
//
// Sleep advances simulated time instantly, so a polling loop that would take
// minutes in real time completes in microseconds while observing exactly the
// timestamps it would have seen on a perfect clock.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxcap/pkg/clock"
)

// Epoch is the default start time of a new [Clock].
var Epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// Clock is a simulated clock. The zero value is not usable; use [New].
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// OnSleep, when set, is called after every Sleep with the new time.
	// Tests use it to inject events (e.g. cancellation) at a given instant.
	OnSleep func(now time.Time)
}

// Compile-time interface assertion.
var _ clock.Clock = (*Clock)(nil)

// New returns a clock starting at [Epoch].
func New() *Clock {
	return &Clock{now: Epoch}
}

// Now implements [clock.Clock].
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep implements [clock.Clock] by advancing simulated time by d.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	now := c.now
	hook := c.OnSleep
	c.mu.Unlock()

	if hook != nil {
		hook(now)
	}
	return ctx.Err()
}

// Advance moves simulated time forward by d without recording a sleep.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Elapsed returns the simulated time since [Epoch].
func (c *Clock) Elapsed() time.Duration {
	return c.Now().Sub(Epoch)
}

// Sleeps returns a copy of every duration passed to Sleep.
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}
