// Package capture implements adaptive voice capture: ambient calibration,
// energy-based speech onset detection, a duration-adaptive trailing-silence
// state machine, device lifecycle control and post-processing of the
// finished clip.
//
// A [Capturer] runs one capture request at a time against a device:
//
//	calibrate → begin recording → wait for onset → track speech → end
//	recording → trim → (noise gate) → pre-emphasis → AGC → [Clip]
//
// All timing goes through a [clock.Clock], so the whole loop can be driven
// by a simulated clock in tests.
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/voxcap/pkg/audio"
	"github.com/MrWong99/voxcap/pkg/audio/dsp"
)

// ErrConfigInvalid is returned (wrapped) for every configuration problem.
var ErrConfigInvalid = errors.New("capture: invalid config")

// Config is the immutable configuration of a capture request.
type Config struct {
	// SampleRate of the recording in Hz.
	SampleRate int

	// Channels of the recording. Only mono (1) is supported.
	Channels int

	// CalibrationWindow is how long ambient energy is sampled before
	// recording starts. Zero disables calibration and uses the floors.
	CalibrationWindow time.Duration

	// PollInterval is the time between energy readings.
	PollInterval time.Duration

	// NoSpeechTimeout ends a session in which no speech started.
	NoSpeechTimeout time.Duration

	// MinClipDuration is the shortest clip returned; shorter recordings are
	// extended.
	MinClipDuration time.Duration

	// HardCap bounds the length of every session.
	HardCap time.Duration

	// StartFloor and KeepFloor are the lowest start and keep thresholds.
	StartFloor float64
	KeepFloor  float64

	// StartBonus is added to the ambient baseline to get the start
	// threshold.
	StartBonus float64

	// KeepMargin is the keep threshold as a fraction of the start threshold.
	KeepMargin float64

	// ShortTrail is the silence that ends an utterance shorter than
	// LongTrailSwitch; LongTrail applies after that.
	ShortTrail      time.Duration
	LongTrail       time.Duration
	LongTrailSwitch time.Duration

	// TrimFraction of the start threshold is the silence trimming level.
	TrimFraction float64

	// NoiseGate zeroes sustained stretches below the trim threshold.
	NoiseGate bool

	// PreEmphasis enables the pre-emphasis filter with the given
	// coefficient.
	PreEmphasis            bool
	PreEmphasisCoefficient float64

	// AGC enables automatic gain control.
	AGC          bool
	AGCTargetRMS float64
	AGCMaxGain   float64

	// PeakNormalize scales the clip to full scale. Mutually exclusive with
	// AGC.
	PeakNormalize bool
}

// Format returns the recording format.
func (c Config) Format() audio.Format {
	return audio.Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

// Validate checks c and returns every problem found, each wrapping
// [ErrConfigInvalid].
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrConfigInvalid, fmt.Sprintf(format, args...)))
	}

	if c.SampleRate <= 0 {
		bad("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 {
		bad("channels must be 1, got %d", c.Channels)
	}
	if c.CalibrationWindow < 0 {
		bad("calibration_window must not be negative, got %v", c.CalibrationWindow)
	}
	if c.PollInterval <= 0 {
		bad("poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.NoSpeechTimeout <= 0 {
		bad("no_speech_timeout must be positive, got %v", c.NoSpeechTimeout)
	}
	if c.HardCap <= 0 {
		bad("hard_cap must be positive, got %v", c.HardCap)
	}
	if c.NoSpeechTimeout > c.HardCap {
		bad("no_speech_timeout (%v) must not exceed hard_cap (%v)", c.NoSpeechTimeout, c.HardCap)
	}
	if c.MinClipDuration < 0 || c.MinClipDuration > c.HardCap {
		bad("min_clip_duration must be between 0 and hard_cap (%v), got %v", c.HardCap, c.MinClipDuration)
	}
	if c.StartFloor <= 0 {
		bad("start_floor must be positive, got %v", c.StartFloor)
	}
	if c.KeepFloor <= 0 {
		bad("keep_floor must be positive, got %v", c.KeepFloor)
	}
	if c.StartBonus < 0 {
		bad("start_bonus must not be negative, got %v", c.StartBonus)
	}
	if c.KeepMargin <= 0 || c.KeepMargin > 1 {
		bad("keep_margin must be in (0, 1], got %v", c.KeepMargin)
	}
	if c.ShortTrail <= 0 || c.LongTrail <= 0 {
		bad("short_trail and long_trail must be positive, got %v and %v", c.ShortTrail, c.LongTrail)
	}
	if c.LongTrailSwitch < 0 {
		bad("long_trail_switch must not be negative, got %v", c.LongTrailSwitch)
	}
	if c.TrimFraction < 0 || c.TrimFraction > 1 {
		bad("trim_fraction must be in [0, 1], got %v", c.TrimFraction)
	}
	if c.PreEmphasis && (c.PreEmphasisCoefficient <= 0 || c.PreEmphasisCoefficient >= 1) {
		bad("pre_emphasis coefficient must be in (0, 1), got %v", c.PreEmphasisCoefficient)
	}
	if c.AGC {
		if c.AGCTargetRMS <= 0 || c.AGCTargetRMS > audio.MaxSample {
			bad("agc target_rms must be in (0, %d], got %v", audio.MaxSample, c.AGCTargetRMS)
		}
		if c.AGCMaxGain <= 0 {
			bad("agc max_gain must be positive, got %v", c.AGCMaxGain)
		}
		if c.PeakNormalize {
			bad("agc and peak_normalize are mutually exclusive")
		}
	}

	return errors.Join(errs...)
}

// Pipeline builds the post-processing chain for a session with thresholds
// th. Stage order is fixed: trim, noise gate, pre-emphasis, then AGC or
// peak normalisation.
func (c Config) Pipeline(th Thresholds, opts ...dsp.PipelineOption) *dsp.Pipeline {
	trim := dsp.NewTrimmer(th.Start, c.TrimFraction)
	stages := []dsp.Stage{trim}
	if c.NoiseGate {
		stages = append(stages, dsp.NoiseGate{Threshold: trim.Threshold})
	}
	if c.PreEmphasis {
		stages = append(stages, dsp.PreEmphasis{Coefficient: c.PreEmphasisCoefficient})
	}
	switch {
	case c.AGC:
		stages = append(stages, dsp.AGC{TargetRMS: c.AGCTargetRMS, MaxGain: c.AGCMaxGain})
	case c.PeakNormalize:
		stages = append(stages, dsp.PeakNormalizer{})
	}
	return dsp.NewPipeline(stages, opts...)
}

// trailingWindow returns the silence that ends an utterance which has been
// going on for spoken.
func (c Config) trailingWindow(spoken time.Duration) time.Duration {
	if spoken >= c.LongTrailSwitch {
		return c.LongTrail
	}
	return c.ShortTrail
}
