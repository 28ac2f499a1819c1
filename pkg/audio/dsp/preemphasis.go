package dsp

import "github.com/MrWong99/voxcap/pkg/audio"

// DefaultPreEmphasis is the conventional speech pre-emphasis coefficient.
const DefaultPreEmphasis = 0.97

// PreEmphasis is the first-order high-pass filter y[n] = x[n] - c·x[n-1]
// with x[-1] = 0. Output samples are clamped to ±32767.
type PreEmphasis struct {
	Coefficient float64
}

// Name implements [Stage].
func (PreEmphasis) Name() string { return StagePreEmphasis }

// Apply implements [Stage]. The output always has the input's length. An
// empty buffer is reported unchanged.
func (p PreEmphasis) Apply(in audio.Buffer) (audio.Buffer, bool) {
	if in.Empty() {
		return in, false
	}
	out := audio.NewBuffer(in.Format(), in.Len())
	prev := 0.0
	for i, s := range in.Samples {
		x := float64(s)
		out.Samples[i] = audio.ClampPeak(x - p.Coefficient*prev)
		prev = x
	}
	return out, true
}
