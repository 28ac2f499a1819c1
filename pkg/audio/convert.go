package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// FormatConverter converts buffers to a target format. It logs a warning on
// the first format mismatch. Create one per source; not designed for shared
// use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert converts b to the target format. If the source format already
// matches the target, b is returned unchanged (zero allocation).
// Conversion order: downmix first, then resample, then upmix, so resampling
// always runs on the fewest channels.
func (c *FormatConverter) Convert(b Buffer) Buffer {
	if b.SampleRate == c.Target.SampleRate && b.Channels == c.Target.Channels {
		return b
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", b.Format().String(),
			"to", c.Target.String(),
		)
	})

	samples := b.Samples
	channels := b.Channels

	if channels > 1 && c.Target.Channels == 1 {
		samples = DownmixToMono(samples, channels)
		channels = 1
	}

	if b.SampleRate != c.Target.SampleRate {
		samples = Resample(samples, channels, b.SampleRate, c.Target.SampleRate)
	}

	if channels == 1 && c.Target.Channels == 2 {
		samples = MonoToStereo(samples)
		channels = 2
	}

	return Buffer{Samples: samples, SampleRate: c.Target.SampleRate, Channels: channels}
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(samples []int16) []int16 {
	out := make([]int16, len(samples)*2)
	for i, s := range samples {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// StereoToMono averages each L+R pair.
func StereoToMono(samples []int16) []int16 {
	return DownmixToMono(samples, 2)
}

// DownmixToMono averages every frame of an interleaved multi-channel
// sequence into a single sample. Uses int64 arithmetic and clamps to the
// int16 range. A trailing partial frame is dropped.
func DownmixToMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int64
		for ch := range channels {
			sum += int64(samples[i*channels+ch])
		}
		avg := sum / int64(channels)
		if avg > MaxSample {
			avg = MaxSample
		} else if avg < MinSample {
			avg = MinSample
		}
		out[i] = int16(avg)
	}
	return out
}

// Resample converts interleaved PCM from srcRate to dstRate using linear
// interpolation per channel. Invalid rates or equal rates return the input
// unchanged.
func Resample(samples []int16, channels, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < channels {
		return samples
	}
	srcFrames := len(samples) / channels
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]int16, dstFrames*channels)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)
		next := srcIdx + 1
		if next >= srcFrames {
			next = srcIdx
		}
		for ch := range channels {
			s0 := float64(samples[srcIdx*channels+ch])
			s1 := float64(samples[next*channels+ch])
			out[i*channels+ch] = int16(s0*(1-frac) + s1*frac)
		}
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "16000Hz mono".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
