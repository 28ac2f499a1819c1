// Package replay provides a [device.Device] that plays back a recording as
// if it were a live microphone.
//
// Playback starts when the device is created and advances with its
// [clock.Clock]. Energy readings are the RMS of the most recent window of
// audio at the playhead; recordings capture whatever the playhead passed
// over between Start and Stop. This makes it possible to run the full
// capture pipeline against a known WAV file, both in tests and from the
// command line.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/voxcap/pkg/audio"
	"github.com/MrWong99/voxcap/pkg/audio/wav"
	"github.com/MrWong99/voxcap/pkg/clock"
	"github.com/MrWong99/voxcap/pkg/device"
)

// DefaultEnergyWindow is the span of audio averaged into one energy reading.
const DefaultEnergyWindow = 50 * time.Millisecond

// Device replays a mono buffer in (simulated) real time.
type Device struct {
	clock  clock.Clock
	src    audio.Buffer
	loop   bool
	window time.Duration
	origin time.Time
	spans  device.Spans
}

// Compile-time interface assertion.
var _ device.Device = (*Device)(nil)

// Option is a functional option for [New] and [Open].
type Option func(*Device)

// WithClock sets the clock that drives playback. Defaults to the system
// clock.
func WithClock(c clock.Clock) Option {
	return func(d *Device) { d.clock = c }
}

// WithLoop makes playback wrap around at the end of the source instead of
// falling silent.
func WithLoop(loop bool) Option {
	return func(d *Device) { d.loop = loop }
}

// WithEnergyWindow sets the span of audio averaged into one energy reading.
func WithEnergyWindow(w time.Duration) Option {
	return func(d *Device) { d.window = w }
}

// New creates a device replaying src. Multi-channel sources are mixed down
// to mono.
func New(src audio.Buffer, opts ...Option) *Device {
	if src.Channels > 1 {
		src = audio.Buffer{
			Samples:    audio.DownmixToMono(src.Samples, src.Channels),
			SampleRate: src.SampleRate,
			Channels:   1,
		}
	}
	d := &Device{
		clock:  clock.Real{},
		src:    src,
		window: DefaultEnergyWindow,
	}
	for _, o := range opts {
		o(d)
	}
	d.origin = d.clock.Now()
	return d
}

// Open loads a WAV file and returns a device replaying it.
func Open(path string, opts ...Option) (*Device, error) {
	buf, err := wav.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if buf.Empty() || buf.SampleRate <= 0 {
		return nil, fmt.Errorf("replay: %q holds no audio", path)
	}
	return New(buf, opts...), nil
}

// Source returns the mono buffer being replayed.
func (d *Device) Source() audio.Buffer { return d.src }

// ReadEnergy implements [device.EnergySource].
func (d *Device) ReadEnergy(_ context.Context) (float64, error) {
	end := d.playhead(d.clock.Now())
	n := d.src.Format().SamplesFor(d.window)
	return audio.RMS(d.samples(end-n, end)), nil
}

// Start implements [device.Recorder].
func (d *Device) Start(_ context.Context, dest string, format audio.Format) error {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return fmt.Errorf("replay: invalid format %s", format)
	}
	d.spans.Start(d.clock.Now(), dest, format)
	return nil
}

// Stop implements [device.Recorder].
func (d *Device) Stop(_ context.Context) error {
	d.spans.Stop(d.clock.Now())
	return nil
}

// Collect implements [device.Recorder]. The replayed audio is converted to
// the format requested in Start.
func (d *Device) Collect(_ context.Context, dest string) (audio.Buffer, error) {
	sp, err := d.spans.Get(dest)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("replay: %w", err)
	}
	from, to := d.playhead(sp.Start), d.playhead(sp.Stop)
	raw := audio.Buffer{
		Samples:    d.samples(from, to),
		SampleRate: d.src.SampleRate,
		Channels:   1,
	}
	conv := audio.FormatConverter{Target: sp.Format}
	return conv.Convert(raw), nil
}

// Close implements [device.Device].
func (d *Device) Close() error { return nil }

// playhead returns the absolute (unwrapped) sample index played at t.
func (d *Device) playhead(t time.Time) int {
	off := t.Sub(d.origin)
	if off < 0 {
		return 0
	}
	return int(int64(off) * int64(d.src.SampleRate) / int64(time.Second))
}

// samples copies the absolute range [from, to) of the playback timeline.
// Positions before the start or past the end of a non-looping source are
// silence.
func (d *Device) samples(from, to int) []int16 {
	if to <= from {
		return nil
	}
	out := make([]int16, to-from)
	n := len(d.src.Samples)
	if n == 0 {
		return out
	}
	for i := range out {
		pos := from + i
		switch {
		case pos < 0:
			continue
		case pos < n:
			out[i] = d.src.Samples[pos]
		case d.loop:
			out[i] = d.src.Samples[pos%n]
		}
	}
	return out
}
