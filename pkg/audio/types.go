// Package audio defines the PCM buffer type shared by capture devices, the
// post-processing pipeline and transcription providers, plus small helpers
// for measuring and converting 16-bit signed sample data.
package audio

import (
	"encoding/binary"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSample is the width of one 16-bit PCM sample.
const BytesPerSample = 2

// SamplesFor returns the number of interleaved samples covering d in format f.
func (f Format) SamplesFor(d time.Duration) int {
	if d <= 0 || f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return int(int64(d) * int64(f.SampleRate) / int64(time.Second) * int64(f.Channels))
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Buffer is an owned, contiguous sequence of 16-bit signed PCM samples.
// Multi-channel data is interleaved.
//
// Functions that transform a Buffer return a new one and never mutate the
// input's Samples slice.
type Buffer struct {
	// Samples holds interleaved PCM samples.
	Samples []int16

	// SampleRate in Hz (16000 for speech capture).
	SampleRate int

	// Channels: 1 for mono capture.
	Channels int
}

// NewBuffer returns a zeroed buffer of n samples in format f.
func NewBuffer(f Format, n int) Buffer {
	return Buffer{
		Samples:    make([]int16, n),
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
	}
}

// FromBytes decodes little-endian int16 PCM into a Buffer. A trailing odd
// byte is ignored.
func FromBytes(pcm []byte, f Format) Buffer {
	b := NewBuffer(f, len(pcm)/BytesPerSample)
	for i := range b.Samples {
		b.Samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return b
}

// Format returns the buffer's sample rate and channel count.
func (b Buffer) Format() Format {
	return Format{SampleRate: b.SampleRate, Channels: b.Channels}
}

// Len returns the number of interleaved samples.
func (b Buffer) Len() int { return len(b.Samples) }

// Empty reports whether the buffer holds no samples.
func (b Buffer) Empty() bool { return len(b.Samples) == 0 }

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := int64(len(b.Samples) / b.Channels)
	return time.Duration(frames * int64(time.Second) / int64(b.SampleRate))
}

// Clone returns a deep copy of b.
func (b Buffer) Clone() Buffer {
	out := b
	out.Samples = append([]int16(nil), b.Samples...)
	return out
}

// Slice returns a new buffer holding a copy of Samples[from:to].
func (b Buffer) Slice(from, to int) Buffer {
	out := b
	out.Samples = append([]int16(nil), b.Samples[from:to]...)
	return out
}

// Append returns a new buffer with other's samples appended to b's. Both
// buffers must share the same format.
func (b Buffer) Append(other Buffer) Buffer {
	out := b
	out.Samples = make([]int16, 0, len(b.Samples)+len(other.Samples))
	out.Samples = append(out.Samples, b.Samples...)
	out.Samples = append(out.Samples, other.Samples...)
	return out
}

// Bytes encodes the samples as little-endian int16 PCM.
func (b Buffer) Bytes() []byte {
	out := make([]byte, len(b.Samples)*BytesPerSample)
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
