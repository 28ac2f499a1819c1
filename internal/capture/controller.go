package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/voxcap/pkg/audio"
	"github.com/MrWong99/voxcap/pkg/clock"
	"github.com/MrWong99/voxcap/pkg/device"
)

// Indicator is told when the device starts and stops listening, e.g. to
// drive a status LED. Implementations must not block.
type Indicator interface {
	Listening(ctx context.Context)
	Idle(ctx context.Context)
}

// logIndicator is the default [Indicator].
type logIndicator struct{}

func (logIndicator) Listening(context.Context) { slog.Debug("capture: listening") }
func (logIndicator) Idle(context.Context)      { slog.Debug("capture: idle") }

// DestinationName returns the timestamped recording name used for a
// session starting at t, e.g. "rec_20250101_120000.000.wav".
func DestinationName(t time.Time) string {
	return "rec_" + t.UTC().Format("20060102_150405.000") + ".wav"
}

// Controller owns the start/stop lifecycle of the recorder. Every
// [Controller.Begin] that succeeds must be paired with [Controller.End].
type Controller struct {
	rec       device.Recorder
	clk       clock.Clock
	cfg       Config
	indicator Indicator
}

// NewController returns a controller recording in cfg's format.
func NewController(rec device.Recorder, clk clock.Clock, cfg Config, ind Indicator) *Controller {
	if ind == nil {
		ind = logIndicator{}
	}
	return &Controller{rec: rec, clk: clk, cfg: cfg, indicator: ind}
}

// Handle identifies a recording started by [Controller.Begin].
type Handle struct {
	// Destination is the recorder destination.
	Destination string

	// Started is when recording started.
	Started time.Time
}

// Recording is what [Controller.End] returns.
type Recording struct {
	Buffer audio.Buffer

	// Captured is the duration actually recorded, before padding.
	Captured time.Duration

	// Padded reports whether the clip was extended to the minimum length.
	Padded bool
}

// Begin stops any recording left over from an earlier session, then starts
// recording to a fresh destination.
func (c *Controller) Begin(ctx context.Context) (*Handle, error) {
	if err := c.rec.Stop(ctx); err != nil {
		slog.Warn("capture: stopping stale recording failed", "error", err)
	}
	now := c.clk.Now()
	h := &Handle{Destination: DestinationName(now), Started: now}
	if err := c.rec.Start(ctx, h.Destination, c.cfg.Format()); err != nil {
		return nil, fmt.Errorf("capture: start recording %q: %w", h.Destination, err)
	}
	c.indicator.Listening(ctx)
	return h, nil
}

// End stops the recording and returns its samples, truncated to the hard
// cap and extended to the minimum clip length. End still stops the device
// when ctx is already cancelled.
func (c *Controller) End(ctx context.Context, h *Handle) (Recording, error) {
	stopCtx := context.WithoutCancel(ctx)
	defer c.indicator.Idle(stopCtx)

	if err := c.rec.Stop(stopCtx); err != nil {
		slog.Warn("capture: stop recording failed", "destination", h.Destination, "error", err)
	}
	buf, err := c.rec.Collect(stopCtx, h.Destination)
	if err != nil {
		buf = audio.Buffer{SampleRate: c.cfg.SampleRate, Channels: c.cfg.Channels}
		slog.Warn("capture: collect recording failed", "destination", h.Destination, "error", err)
	}

	if limit := c.cfg.Format().SamplesFor(c.cfg.HardCap); buf.Len() > limit {
		buf = buf.Slice(0, limit)
	}
	rec := Recording{Buffer: buf, Captured: buf.Duration()}

	short := c.cfg.MinClipDuration - buf.Duration()
	if short <= 0 {
		return rec, err
	}

	// Too short: record the missing time again, unless the caller gave up.
	if ctx.Err() == nil {
		extra, extraErr := c.extra(ctx, h, short)
		if extraErr != nil {
			slog.Warn("capture: extra recording failed", "destination", h.Destination, "error", extraErr)
		} else if !extra.Empty() {
			rec.Buffer = rec.Buffer.Append(extra)
			rec.Padded = true
		}
	}

	if rec.Buffer.Empty() {
		return rec, err
	}
	if buf, ok := padToMin(rec.Buffer, c.cfg.MinClipDuration); ok {
		rec.Buffer = buf
		rec.Padded = true
	}
	return rec, nil
}

// padToMin appends digital silence to a non-empty buf shorter than d.
// Empty buffers are returned as is.
func padToMin(buf audio.Buffer, d time.Duration) (audio.Buffer, bool) {
	if buf.Empty() {
		return buf, false
	}
	f := buf.Format()
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return buf, false
	}
	// Round up so the padded clip's Duration never falls short of d.
	frames := (int64(d)*int64(f.SampleRate) + int64(time.Second) - 1) / int64(time.Second)
	missing := int(frames)*f.Channels - buf.Len()
	if missing <= 0 {
		return buf, false
	}
	return buf.Append(audio.NewBuffer(f, missing)), true
}

// extra records d more audio to a destination derived from h.
func (c *Controller) extra(ctx context.Context, h *Handle, d time.Duration) (audio.Buffer, error) {
	dest := "pad_" + h.Destination
	if err := c.rec.Start(ctx, dest, c.cfg.Format()); err != nil {
		return audio.Buffer{}, err
	}
	sleepErr := c.clk.Sleep(ctx, d)
	stopCtx := context.WithoutCancel(ctx)
	if err := c.rec.Stop(stopCtx); err != nil {
		return audio.Buffer{}, err
	}
	buf, err := c.rec.Collect(stopCtx, dest)
	if err != nil {
		return audio.Buffer{}, err
	}
	if sleepErr != nil {
		slog.Debug("capture: extra recording cut short", "error", sleepErr)
	}
	return buf, nil
}
