package dsp

import "github.com/MrWong99/voxcap/pkg/audio"

// Noise gate defaults: 20 ms windows at 16 kHz, held open for 200 ms.
const (
	DefaultGateWindow = 320
	DefaultGateHold   = 10
)

// NoiseGate zeroes windows whose RMS falls below Threshold once the signal
// has stayed quiet for longer than the hold period. The hold keeps short
// pauses inside speech intact.
type NoiseGate struct {
	Threshold float64

	// Window is the gate window in samples. Zero means [DefaultGateWindow].
	Window int

	// Hold is the number of quiet windows passed through after the last
	// loud one. Negative means no hold; zero means [DefaultGateHold].
	Hold int
}

// Name implements [Stage].
func (NoiseGate) Name() string { return StageNoiseGate }

// Apply implements [Stage]. It reports no change when every window is
// either loud or within the hold period.
func (g NoiseGate) Apply(in audio.Buffer) (audio.Buffer, bool) {
	w := g.Window
	if w <= 0 {
		w = DefaultGateWindow
	}
	hold := g.Hold
	switch {
	case hold == 0:
		hold = DefaultGateHold
	case hold < 0:
		hold = 0
	}

	var out audio.Buffer
	gated := false
	remaining := 0
	for from := 0; from < len(in.Samples); from += w {
		to := min(from+w, len(in.Samples))
		if audio.RMS(in.Samples[from:to]) >= g.Threshold {
			remaining = hold
			continue
		}
		if remaining > 0 {
			remaining--
			continue
		}
		if !gated {
			out = in.Clone()
			gated = true
		}
		clear(out.Samples[from:to])
	}
	if !gated {
		return in, false
	}
	return out, true
}
