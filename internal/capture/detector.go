package capture

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/voxcap/pkg/device"
)

// Phase is the state of a capture session.
type Phase int

const (
	// PhaseWaitingOnset polls for the first reading at or above the start
	// threshold.
	PhaseWaitingOnset Phase = iota

	// PhaseTrackingSpeech polls for trailing silence after onset.
	PhaseTrackingSpeech

	// PhaseStopped is terminal; see [Detector.Reason].
	PhaseStopped
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseWaitingOnset:
		return "waiting_onset"
	case PhaseTrackingSpeech:
		return "tracking_speech"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason records why a session ended.
type StopReason int

const (
	// StopNone means the session has not stopped.
	StopNone StopReason = iota

	// StopSilence: trailing silence after speech reached the trailing
	// window. The normal outcome.
	StopSilence

	// StopHardCap: the session reached the hard cap.
	StopHardCap

	// StopNoSpeech: no onset within the no-speech timeout.
	StopNoSpeech

	// StopCancelled: the caller's context was cancelled.
	StopCancelled

	// StopDeviceUnavailable: recording could not be started.
	StopDeviceUnavailable
)

// Sentinels reported by [Clip.Err] for abnormal stop reasons.
var (
	ErrNoSpeech = errors.New("capture: no speech detected")
	ErrHardCap  = errors.New("capture: hard cap reached")
)

// String returns the reason as used in logs, metrics and provenance.
func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopSilence:
		return "silence_timeout"
	case StopHardCap:
		return "hard_cap"
	case StopNoSpeech:
		return "no_speech"
	case StopCancelled:
		return "cancelled"
	case StopDeviceUnavailable:
		return "device_unavailable"
	default:
		return "unknown"
	}
}

// err maps the reason to its sentinel error; nil for normal outcomes.
func (r StopReason) err() error {
	switch r {
	case StopNoSpeech:
		return ErrNoSpeech
	case StopHardCap:
		return ErrHardCap
	case StopCancelled:
		return context.Canceled
	case StopDeviceUnavailable:
		return device.ErrUnavailable
	default:
		return nil
	}
}

// Detector is the onset and trailing-silence state machine of one session.
// It is fed one energy reading per poll through [Detector.Observe] and
// performs no I/O itself. Not safe for concurrent use.
type Detector struct {
	cfg   Config
	th    Thresholds
	start time.Time

	phase      Phase
	reason     StopReason
	onset      time.Time
	lastSpeech time.Time
	stoppedAt  time.Time
}

// NewDetector returns a detector for a session that started at start.
func NewDetector(cfg Config, th Thresholds, start time.Time) *Detector {
	return &Detector{cfg: cfg, th: th, start: start}
}

// Observe feeds the reading taken at now and returns the resulting phase.
// Once stopped, further readings are ignored.
func (d *Detector) Observe(now time.Time, energy float64) Phase {
	elapsed := now.Sub(d.start)

	switch d.phase {
	case PhaseWaitingOnset:
		if energy >= d.th.Start {
			d.phase = PhaseTrackingSpeech
			d.onset = now
			d.lastSpeech = now
			if elapsed >= d.cfg.HardCap {
				d.stop(now, StopHardCap)
			}
			return d.phase
		}
		if elapsed >= d.cfg.NoSpeechTimeout {
			d.stop(now, StopNoSpeech)
		} else if elapsed >= d.cfg.HardCap {
			d.stop(now, StopHardCap)
		}

	case PhaseTrackingSpeech:
		if elapsed >= d.cfg.HardCap {
			d.stop(now, StopHardCap)
			return d.phase
		}
		if energy >= d.th.Keep {
			d.lastSpeech = now
			return d.phase
		}
		window := d.cfg.trailingWindow(now.Sub(d.onset))
		if now.Sub(d.lastSpeech) >= window {
			d.stop(now, StopSilence)
		}
	}
	return d.phase
}

// Cancel stops the session with [StopCancelled] unless it already stopped.
func (d *Detector) Cancel(now time.Time) {
	if d.phase != PhaseStopped {
		d.stop(now, StopCancelled)
	}
}

func (d *Detector) stop(now time.Time, reason StopReason) {
	d.phase = PhaseStopped
	d.reason = reason
	d.stoppedAt = now
}

// NextSleep returns how long to wait before the next reading taken after
// now: the poll interval, shortened so that the no-speech timeout (while
// waiting for onset) and the hard cap are observed exactly.
func (d *Detector) NextSleep(now time.Time) time.Duration {
	sleep := d.cfg.PollInterval
	elapsed := now.Sub(d.start)
	if d.phase == PhaseWaitingOnset {
		sleep = min(sleep, d.cfg.NoSpeechTimeout-elapsed)
	}
	sleep = min(sleep, d.cfg.HardCap-elapsed)
	return max(sleep, 0)
}

// Phase returns the current phase.
func (d *Detector) Phase() Phase { return d.phase }

// Reason returns why the session stopped, or [StopNone].
func (d *Detector) Reason() StopReason { return d.reason }

// Onset returns the time of speech onset and whether onset happened.
func (d *Detector) Onset() (time.Time, bool) { return d.onset, !d.onset.IsZero() }

// LastSpeech returns the time of the last reading at or above the keep
// threshold.
func (d *Detector) LastSpeech() time.Time { return d.lastSpeech }

// StoppedAt returns when the session stopped.
func (d *Detector) StoppedAt() time.Time { return d.stoppedAt }
