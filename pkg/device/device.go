// Package device defines the interfaces voxcap uses to talk to an audio
// input device.
//
// The two capabilities are:
//
//   - [EnergySource]: an instantaneous loudness reading, polled by the
//     capture loop to detect speech.
//   - [Recorder]: start/stop control of a recording written to a named
//     destination, and retrieval of the recorded samples.
//
// Implementations live in sub-packages (replay, portaudio, mock). This
// package lives under pkg/ because external code is expected to implement
// [Device] for other hardware.
package device

import (
	"context"
	"errors"

	"github.com/MrWong99/voxcap/pkg/audio"
)

// ErrUnavailable is returned when the device cannot serve a request, e.g.
// it is disconnected or was never opened. Capture treats it as silence.
var ErrUnavailable = errors.New("device: unavailable")

// ErrUnknownDestination is returned by [Recorder.Collect] for a destination
// that was never recorded.
var ErrUnknownDestination = errors.New("device: unknown destination")

// EnergySource yields loudness readings on the 16-bit RMS scale.
//
// Implementations must be safe for concurrent use and must not block for
// longer than a single poll interval.
type EnergySource interface {
	// ReadEnergy returns the current energy level. On failure it returns 0
	// and an error wrapping [ErrUnavailable].
	ReadEnergy(ctx context.Context) (float64, error)
}

// Recorder controls a recording.
//
// Start and Stop must be idempotent: stopping a stopped recorder is a no-op,
// and starting while a recording is in progress ends that recording first.
type Recorder interface {
	// Start begins recording to dest in the given format.
	Start(ctx context.Context, dest string, format audio.Format) error

	// Stop ends the current recording, if any.
	Stop(ctx context.Context) error

	// Collect returns the samples recorded to dest. It must be called after
	// the recording to dest was stopped.
	Collect(ctx context.Context, dest string) (audio.Buffer, error)
}

// Input is the pair of capabilities a capture session needs.
type Input interface {
	EnergySource
	Recorder
}

// Device is an input device providing both energy readings and recording.
type Device interface {
	Input

	// Close releases the device. It is safe to call more than once.
	Close() error
}
