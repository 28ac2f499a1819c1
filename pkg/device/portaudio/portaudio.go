//go:build portaudio

// Package portaudio provides a [device.Device] backed by the system's
// default input device through PortAudio.
//
// The device reads fixed-size frames on a background goroutine from the
// moment it is opened. Every frame updates the energy reading; while a
// recording is active, frames are also appended to that recording.
//
// Building this package requires the PortAudio C library and the
// "portaudio" build tag.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voxcap/pkg/audio"
	"github.com/MrWong99/voxcap/pkg/device"
)

// Defaults for [Config].
const (
	DefaultSampleRate      = 16000
	DefaultFramesPerBuffer = 512
)

// Config configures [Open].
type Config struct {
	// SampleRate of the input stream in Hz. Defaults to 16000.
	SampleRate int

	// FramesPerBuffer is the number of samples read per frame. Defaults to
	// 512 (32 ms at 16 kHz).
	FramesPerBuffer int
}

// Device is a live PortAudio microphone.
type Device struct {
	stream *portaudio.Stream
	frame  []int16
	rate   int

	mu        sync.Mutex
	energy    float64
	readErr   error
	recording bool
	dest      string
	pending   []int16
	clips     map[string][]int16

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Compile-time interface assertion.
var _ device.Device = (*Device)(nil)

// Open initialises PortAudio and starts reading the default input device.
func Open(cfg Config) (*Device, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	d := &Device{
		frame: make([]int16, cfg.FramesPerBuffer),
		rate:  cfg.SampleRate,
		clips: make(map[string][]int16),
		done:  make(chan struct{}),
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), cfg.FramesPerBuffer, d.frame)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: open default stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}
	d.stream = stream

	d.wg.Add(1)
	go d.readLoop()

	slog.Info("portaudio input opened", "sample_rate", cfg.SampleRate, "frames_per_buffer", cfg.FramesPerBuffer)
	return d, nil
}

func (d *Device) readLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		default:
		}

		err := d.stream.Read()
		if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			d.mu.Lock()
			d.energy = 0
			d.readErr = err
			d.mu.Unlock()
			select {
			case <-d.done:
				return
			default:
			}
			continue
		}

		rms := audio.RMS(d.frame)
		d.mu.Lock()
		d.energy = rms
		d.readErr = nil
		if d.recording {
			d.pending = append(d.pending, d.frame...)
		}
		d.mu.Unlock()
	}
}

// ReadEnergy implements [device.EnergySource]. It returns the RMS of the
// most recently read frame.
func (d *Device) ReadEnergy(_ context.Context) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readErr != nil {
		return 0, fmt.Errorf("%w: %w", device.ErrUnavailable, d.readErr)
	}
	return d.energy, nil
}

// Start implements [device.Recorder]. Only mono recording at the stream's
// sample rate is supported.
func (d *Device) Start(_ context.Context, dest string, format audio.Format) error {
	if format.SampleRate != d.rate || format.Channels != 1 {
		return fmt.Errorf("portaudio: unsupported format %s, stream is %dHz mono", format, d.rate)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recording {
		d.finishLocked()
	}
	d.recording = true
	d.dest = dest
	d.pending = nil
	return nil
}

// Stop implements [device.Recorder].
func (d *Device) Stop(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recording {
		d.finishLocked()
	}
	return nil
}

func (d *Device) finishLocked() {
	d.clips[d.dest] = d.pending
	d.pending = nil
	d.recording = false
	d.dest = ""
}

// Collect implements [device.Recorder]. The recording is removed from the
// device once collected.
func (d *Device) Collect(_ context.Context, dest string) (audio.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	samples, ok := d.clips[dest]
	if !ok {
		return audio.Buffer{}, fmt.Errorf("portaudio: %w: %q", device.ErrUnknownDestination, dest)
	}
	delete(d.clips, dest)
	return audio.Buffer{Samples: samples, SampleRate: d.rate, Channels: 1}, nil
}

// Close stops the stream and releases PortAudio. Safe to call more than once.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		if stopErr := d.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("portaudio: stop stream: %w", stopErr)
		}
		d.wg.Wait()
		err = errors.Join(err, d.stream.Close(), portaudio.Terminate())
	})
	return err
}
