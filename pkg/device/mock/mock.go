// Package mock provides a scripted [device.Device] for unit tests.
//
// The device replays an energy trace against a [clock.Clock]: reading i of
// Trace is returned for times in [Origin+i·Step, Origin+(i+1)·Step). Recorded
// audio is synthesised from the same trace as a square wave whose RMS equals
// the trace energy, so post-processing sees the loudness the capture loop
// saw.
//
// The mock is safe for concurrent use. It records every call so tests can
// assert on counts and arguments; exported error fields control failures.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/voxcap/pkg/audio"
	"github.com/MrWong99/voxcap/pkg/clock"
	"github.com/MrWong99/voxcap/pkg/device"
)

// Device is a mock implementation of [device.Device].
type Device struct {
	mu sync.Mutex

	// Clock drives the trace. Required.
	Clock clock.Clock

	// Origin is the time of Trace[0]. Defaults to the clock's time at the
	// first call.
	Origin time.Time

	// Step is the duration of each trace entry. Defaults to 100ms.
	Step time.Duration

	// Trace holds the scripted energy readings.
	Trace []float64

	// Tail is the energy returned after the trace ends.
	Tail float64

	// EnergyErr, when non-nil, is called before each reading; a non-nil
	// result makes ReadEnergy fail with energy 0.
	EnergyErr func(now time.Time) error

	// StartErr, StopErr and CollectErr are returned by the matching calls.
	StartErr   error
	StopErr    error
	CollectErr error

	// StartDests records the destination of every Start call.
	StartDests []string

	// CallCountReadEnergy, CallCountStart, CallCountStop and CallCountClose
	// record how many times each method was called.
	CallCountReadEnergy int
	CallCountStart      int
	CallCountStop       int
	CallCountClose      int

	spans device.Spans
}

// Compile-time interface assertion.
var _ device.Device = (*Device)(nil)

// ReadEnergy implements [device.EnergySource].
func (d *Device) ReadEnergy(_ context.Context) (float64, error) {
	now := d.Clock.Now()
	d.mu.Lock()
	d.CallCountReadEnergy++
	errFn := d.EnergyErr
	d.mu.Unlock()

	if errFn != nil {
		if err := errFn(now); err != nil {
			return 0, fmt.Errorf("%w: %w", device.ErrUnavailable, err)
		}
	}
	return d.EnergyAt(now), nil
}

// EnergyAt returns the scripted energy at t.
func (d *Device) EnergyAt(t time.Time) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Origin.IsZero() {
		d.Origin = t
	}
	step := d.Step
	if step <= 0 {
		step = 100 * time.Millisecond
	}
	off := t.Sub(d.Origin)
	if off < 0 {
		return 0
	}
	idx := int(off / step)
	if idx >= len(d.Trace) {
		return d.Tail
	}
	return d.Trace[idx]
}

// Start implements [device.Recorder].
func (d *Device) Start(_ context.Context, dest string, format audio.Format) error {
	d.mu.Lock()
	d.CallCountStart++
	d.StartDests = append(d.StartDests, dest)
	err := d.StartErr
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.spans.Start(d.Clock.Now(), dest, format)
	return nil
}

// Stop implements [device.Recorder].
func (d *Device) Stop(_ context.Context) error {
	d.mu.Lock()
	d.CallCountStop++
	err := d.StopErr
	d.mu.Unlock()
	d.spans.Stop(d.Clock.Now())
	return err
}

// Recording reports whether a recording is in progress.
func (d *Device) Recording() bool {
	return d.spans.Recording()
}

// Collect implements [device.Recorder].
func (d *Device) Collect(_ context.Context, dest string) (audio.Buffer, error) {
	d.mu.Lock()
	err := d.CollectErr
	d.mu.Unlock()
	if err != nil {
		return audio.Buffer{}, err
	}
	sp, err := d.spans.Get(dest)
	if err != nil {
		return audio.Buffer{}, err
	}

	f := sp.Format
	buf := audio.NewBuffer(f, f.SamplesFor(sp.Stop.Sub(sp.Start)))
	for i := range buf.Samples {
		frame := i / max(f.Channels, 1)
		at := sp.Start.Add(time.Duration(int64(frame) * int64(time.Second) / int64(f.SampleRate)))
		amp := audio.Clamp16(d.EnergyAt(at))
		if frame%2 == 1 {
			amp = -amp
		}
		buf.Samples[i] = amp
	}
	return buf, nil
}

// Close implements [device.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	return nil
}
