// Package wav reads and writes 16-bit PCM WAV containers for captured clips.
//
// [Encode] produces an in-memory container for upload to transcription
// services. [WriteFile] and [ReadFile] persist clips on disk and load
// recordings of any common PCM bit depth, converting them to 16-bit.
// [Validate] applies the acceptance checks a clip must pass before it is
// worth uploading.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/MrWong99/voxcap/pkg/audio"
)

const (
	bitsPerSample = 16
	headerSize    = 44

	// formatPCM is the WAVE_FORMAT_PCM audio format tag.
	formatPCM = 1
)

var (
	// ErrInvalid is returned when data is not a readable RIFF/WAVE container.
	ErrInvalid = errors.New("wav: invalid container")

	// ErrTooShort is returned by [Validate] when a clip is below the
	// configured size or duration minimum.
	ErrTooShort = errors.New("wav: clip too short")
)

// Encode wraps buf in a canonical 44-byte RIFF/WAVE header.
func Encode(buf audio.Buffer) []byte {
	channels := buf.Channels
	if channels <= 0 {
		channels = 1
	}
	byteRate := buf.SampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(buf.Samples) * audio.BytesPerSample

	out := make([]byte, headerSize+dataSize)

	// RIFF chunk descriptor
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize)) // file size − 8
	copy(out[8:12], "WAVE")

	// fmt sub-chunk
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)                     // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(out[20:22], formatPCM)              // audio format
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))       // num channels
	binary.LittleEndian.PutUint32(out[24:28], uint32(buf.SampleRate)) // sample rate
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))       // byte rate
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))     // block align
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)          // bits per sample

	// data sub-chunk
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))
	for i, s := range buf.Samples {
		binary.LittleEndian.PutUint16(out[headerSize+i*2:], uint16(s))
	}
	return out
}

// Decode parses an in-memory WAV container.
func Decode(data []byte) (audio.Buffer, error) {
	return decode(bytes.NewReader(data))
}

// WriteFile writes buf to path as a 16-bit PCM WAV file, replacing any
// existing file.
func WriteFile(path string, buf audio.Buffer) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wav: create %q: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("wav: close %q: %w", path, cerr)
		}
	}()

	channels := buf.Channels
	if channels <= 0 {
		channels = 1
	}
	enc := gowav.NewEncoder(f, buf.SampleRate, bitsPerSample, channels, formatPCM)
	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		data[i] = int(s)
	}
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: bitsPerSample,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("wav: encode %q: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wav: finalize %q: %w", path, err)
	}
	return nil
}

// ReadFile loads a PCM WAV file. 8-, 24- and 32-bit samples are converted to
// the 16-bit scale; channel layout and sample rate are preserved.
func ReadFile(path string) (audio.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("wav: open %q: %w", path, err)
	}
	defer f.Close()

	buf, err := decode(f)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("wav: read %q: %w", path, err)
	}
	return buf, nil
}

func decode(r io.ReadSeeker) (audio.Buffer, error) {
	dec := gowav.NewDecoder(r)
	if !dec.IsValidFile() {
		return audio.Buffer{}, ErrInvalid
	}
	if dec.WavAudioFormat != formatPCM {
		return audio.Buffer{}, fmt.Errorf("%w: unsupported audio format %d", ErrInvalid, dec.WavAudioFormat)
	}
	ib, err := dec.FullPCMBuffer()
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	out := audio.Buffer{
		Samples:    make([]int16, len(ib.Data)),
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}
	depth := int(dec.BitDepth)
	for i, v := range ib.Data {
		out.Samples[i] = to16(v, depth)
	}
	return out, nil
}

// to16 rescales a decoded sample of the given bit depth to int16.
func to16(v, depth int) int16 {
	switch {
	case depth == 8:
		// 8-bit WAV is unsigned with a 128 midpoint.
		return int16((v - 128) << 8)
	case depth > 16:
		return int16(v >> (depth - 16))
	default:
		return int16(v)
	}
}

// ValidateOptions holds the minimums enforced by [Validate].
type ValidateOptions struct {
	// MinBytes is the smallest acceptable container size including header.
	MinBytes int

	// MinDuration is the shortest acceptable clip.
	MinDuration time.Duration
}

// Validate checks that data is a readable WAV container at least
// opts.MinBytes long and holding at least opts.MinDuration of audio.
// It returns the parsed duration on success.
func Validate(data []byte, opts ValidateOptions) (time.Duration, error) {
	if len(data) < opts.MinBytes {
		return 0, fmt.Errorf("%w: %d bytes, want at least %d", ErrTooShort, len(data), opts.MinBytes)
	}
	dec := gowav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return 0, ErrInvalid
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if d < opts.MinDuration {
		return d, fmt.Errorf("%w: %v, want at least %v", ErrTooShort, d, opts.MinDuration)
	}
	return d, nil
}
