package dsp

import "github.com/MrWong99/voxcap/pkg/audio"

// AGC defaults on the 16-bit scale.
const (
	DefaultTargetRMS = 4500.0
	DefaultMaxGain   = 6.0
)

// AGC scales a whole clip towards TargetRMS. The gain never exceeds
// MaxGain, and if the scaled peak would exceed the int16 maximum the entire
// clip is scaled down again so nothing clips.
type AGC struct {
	TargetRMS float64
	MaxGain   float64
}

// Name implements [Stage].
func (AGC) Name() string { return StageAGC }

// Gain returns the gain AGC would apply to a clip with the given RMS, before
// peak limiting. It returns 0 when rms is not positive.
func (a AGC) Gain(rms float64) float64 {
	if rms <= 0 {
		return 0
	}
	return min(a.MaxGain, a.TargetRMS/rms)
}

// Apply implements [Stage]. Silence (RMS 0) is reported unchanged.
func (a AGC) Apply(in audio.Buffer) (audio.Buffer, bool) {
	gain := a.Gain(audio.RMS(in.Samples))
	if gain <= 0 {
		return in, false
	}
	return scale(in, gain, 1), true
}

// EffectiveGain returns the gain actually applied to samples after peak
// limiting.
func (a AGC) EffectiveGain(samples []int16) float64 {
	gain := a.Gain(audio.RMS(samples))
	if gain <= 0 {
		return 0
	}
	if peak := float64(audio.Peak(samples)) * gain; peak > audio.MaxSample {
		gain *= audio.MaxSample / peak
	}
	return gain
}

// PeakNormalizer scales a clip so its loudest sample reaches Target
// (default full scale).
type PeakNormalizer struct {
	Target int
}

// Name implements [Stage].
func (PeakNormalizer) Name() string { return StagePeakNormalize }

// Apply implements [Stage]. Silence, and clips already peaking at Target,
// are reported unchanged.
func (p PeakNormalizer) Apply(in audio.Buffer) (audio.Buffer, bool) {
	target := p.Target
	if target <= 0 || target > audio.MaxSample {
		target = audio.MaxSample
	}
	peak := audio.Peak(in.Samples)
	if peak == 0 || peak == target {
		return in, false
	}
	return scale(in, float64(target), float64(peak)), true
}

// scale multiplies every sample by num/den, then rescales the whole buffer
// so the loudest sample lands on ±32767 if it would exceed that. The ratio
// is applied per sample as s*num/den so exact ratios round exactly.
func scale(in audio.Buffer, num, den float64) audio.Buffer {
	if peak := float64(audio.Peak(in.Samples)); peak*num/den > audio.MaxSample {
		num, den = audio.MaxSample, peak
	}
	out := audio.NewBuffer(in.Format(), in.Len())
	for i, s := range in.Samples {
		out.Samples[i] = audio.ClampPeak(float64(s) * num / den)
	}
	return out
}
