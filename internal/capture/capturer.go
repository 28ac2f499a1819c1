package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxcap/pkg/audio"
	"github.com/MrWong99/voxcap/pkg/audio/dsp"
	"github.com/MrWong99/voxcap/pkg/clock"
	"github.com/MrWong99/voxcap/pkg/device"
)

// ErrBusy is returned when a capture is requested while another capture is
// running against the same device.
var ErrBusy = errors.New("capture: a capture is already active on this device")

// Clip is the result of one capture request: the processed audio plus
// provenance.
type Clip struct {
	// SessionID uniquely identifies the capture request.
	SessionID string

	// Destination is the recorder destination the audio was written to.
	Destination string

	// Buffer is the post-processed audio. Empty when nothing was recorded.
	Buffer audio.Buffer

	// StopReason records why the session ended.
	StopReason StopReason

	// Thresholds used by the session.
	Thresholds Thresholds

	// StartedAt is when recording started.
	StartedAt time.Time

	// OnsetAfter is the time from StartedAt to speech onset; negative when
	// no speech was detected.
	OnsetAfter time.Duration

	// Captured is the recorded duration before padding and processing.
	Captured time.Duration

	// Padded reports whether the clip was extended to the minimum clip
	// length, before or after processing.
	Padded bool

	// Stages lists the post-processing stages that changed the audio.
	Stages []string

	// ReadErrors counts energy readings that failed and were treated as
	// silence.
	ReadErrors int
}

// Duration returns the final clip duration.
func (c *Clip) Duration() time.Duration { return c.Buffer.Duration() }

// Empty reports whether the clip holds no audio. Callers should treat an
// empty clip as rejected and prompt again.
func (c *Clip) Empty() bool { return c.Buffer.Empty() }

// Err returns the sentinel matching an abnormal stop reason ([ErrNoSpeech],
// [ErrHardCap], [context.Canceled] or [device.ErrUnavailable]), or nil.
func (c *Clip) Err() error { return c.StopReason.err() }

// Option is a functional option for [NewCapturer].
type Option func(*Capturer)

// WithClock sets the clock used for polling. Defaults to the system clock.
func WithClock(c clock.Clock) Option {
	return func(cp *Capturer) { cp.clk = c }
}

// WithIndicator sets the listening indicator.
func WithIndicator(ind Indicator) Option {
	return func(cp *Capturer) { cp.indicator = ind }
}

// WithStageObserver registers fn to receive post-processing stage outcomes.
func WithStageObserver(fn dsp.Observer) Option {
	return func(cp *Capturer) { cp.observer = fn }
}

// WithSessionIDs overrides session ID generation.
func WithSessionIDs(fn func() string) Option {
	return func(cp *Capturer) { cp.newID = fn }
}

// Capturer runs capture requests against one input device. Only one
// capture runs at a time; concurrent calls get [ErrBusy].
type Capturer struct {
	cfg       Config
	in        device.Input
	clk       clock.Clock
	indicator Indicator
	observer  dsp.Observer
	newID     func() string

	active atomic.Bool
}

// NewCapturer validates cfg and returns a capturer for in.
func NewCapturer(cfg Config, in device.Input, opts ...Option) (*Capturer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if in == nil {
		return nil, fmt.Errorf("%w: input device is nil", ErrConfigInvalid)
	}
	c := &Capturer{
		cfg:   cfg,
		in:    in,
		clk:   clock.Real{},
		newID: newSessionID,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Config returns the capturer's configuration.
func (c *Capturer) Config() Config { return c.cfg }

// Capture runs one capture request. It always returns a clip, possibly
// empty; inspect [Clip.StopReason] for how it ended. The error is non-nil
// only for [ErrBusy] and for context cancellation, in which case the clip
// still holds what was recorded.
func (c *Capturer) Capture(ctx context.Context) (*Clip, error) {
	if !c.active.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.active.Store(false)

	clip := &Clip{
		SessionID:  c.newID(),
		OnsetAfter: -1,
		Buffer:     audio.Buffer{SampleRate: c.cfg.SampleRate, Channels: c.cfg.Channels},
	}
	log := slog.With("session_id", clip.SessionID)

	cal, err := Calibrate(ctx, c.in, c.clk, c.cfg)
	clip.Thresholds = DeriveThresholds(c.cfg, cal.Baseline, cal.OK)
	clip.ReadErrors = cal.Failures
	if err != nil {
		clip.StopReason = StopCancelled
		return clip, err
	}
	log.Debug("capture: thresholds",
		"start", clip.Thresholds.Start,
		"keep", clip.Thresholds.Keep,
		"baseline", clip.Thresholds.Baseline,
		"calibrated", clip.Thresholds.Calibrated,
	)

	raw, err := c.record(ctx, clip, log)
	if clip.StopReason == StopDeviceUnavailable {
		log.Warn("capture: device unavailable", "error", err)
		clip.Buffer = raw
		return clip, nil
	}

	res := c.cfg.Pipeline(clip.Thresholds, dsp.WithObserver(c.observer)).Run(raw)
	clip.Buffer = res.Buffer
	clip.Stages = res.Applied
	// Trimming can undo the controller's padding.
	if buf, ok := padToMin(clip.Buffer, c.cfg.MinClipDuration); ok {
		clip.Buffer = buf
		clip.Padded = true
	}

	log.Info("capture: session finished",
		"stop_reason", clip.StopReason.String(),
		"captured", clip.Captured,
		"duration", clip.Duration(),
		"stages", clip.Stages,
		"read_errors", clip.ReadErrors,
	)
	return clip, err
}

// record begins the recording, runs the detector until it stops and ends
// the recording on every path out, including panics.
func (c *Capturer) record(ctx context.Context, clip *Clip, log *slog.Logger) (raw audio.Buffer, err error) {
	ctrl := NewController(c.in, c.clk, c.cfg, c.indicator)
	h, err := ctrl.Begin(ctx)
	if err != nil {
		clip.StopReason = StopDeviceUnavailable
		return audio.Buffer{SampleRate: c.cfg.SampleRate, Channels: c.cfg.Channels}, err
	}
	clip.Destination = h.Destination
	clip.StartedAt = h.Started

	defer func() {
		rec, endErr := ctrl.End(ctx, h)
		if endErr != nil {
			log.Warn("capture: ending recording", "error", endErr)
		}
		raw = rec.Buffer
		clip.Captured = rec.Captured
		clip.Padded = rec.Padded
	}()

	det := NewDetector(c.cfg, clip.Thresholds, h.Started)
	err = c.poll(ctx, det, clip, log)
	clip.StopReason = det.Reason()
	if onset, ok := det.Onset(); ok {
		clip.OnsetAfter = onset.Sub(h.Started)
	}
	return raw, err
}

// poll feeds energy readings to det until it stops or ctx is cancelled.
func (c *Capturer) poll(ctx context.Context, det *Detector, clip *Clip, log *slog.Logger) error {
	for {
		now := c.clk.Now()
		energy, err := c.in.ReadEnergy(ctx)
		if err != nil {
			if clip.ReadErrors == 0 {
				log.Warn("capture: energy read failed, treating as silence", "error", err)
			}
			clip.ReadErrors++
			energy = 0
		}

		before := det.Phase()
		if det.Observe(now, energy) == PhaseStopped {
			return nil
		}
		if before == PhaseWaitingOnset && det.Phase() == PhaseTrackingSpeech {
			log.Debug("capture: speech onset", "after", now.Sub(clip.StartedAt), "energy", energy)
		}

		if err := c.clk.Sleep(ctx, det.NextSleep(now)); err != nil {
			det.Cancel(c.clk.Now())
			return err
		}
	}
}

func newSessionID() string { return uuid.NewString() }
