package dsp

import "github.com/MrWong99/voxcap/pkg/audio"

const (
	// DefaultTrimWindow is the scan window in samples (1024 bytes of 16-bit
	// mono PCM).
	DefaultTrimWindow = 512

	// MinTrimRMS is the lowest trim threshold ever used, so a very quiet
	// session still trims true digital silence.
	MinTrimRMS = 150.0
)

// Trimmer removes leading and trailing silence. It scans inward from both
// ends in fixed windows while each window's RMS is at or below Threshold.
type Trimmer struct {
	// Threshold is the RMS at or below which a window counts as silence.
	Threshold float64

	// Window is the scan window in samples. Zero means [DefaultTrimWindow].
	Window int
}

// NewTrimmer returns a Trimmer whose threshold is fraction of the session's
// start threshold, floored at [MinTrimRMS].
func NewTrimmer(startThreshold, fraction float64) Trimmer {
	return Trimmer{Threshold: max(fraction*startThreshold, MinTrimRMS)}
}

// Name implements [Stage].
func (Trimmer) Name() string { return StageTrim }

// Apply implements [Stage]. A buffer that is silent throughout is reported
// unchanged rather than trimmed to nothing.
func (t Trimmer) Apply(in audio.Buffer) (audio.Buffer, bool) {
	start, end := t.Bounds(in.Samples)
	if start >= end {
		return in, false
	}
	if start == 0 && end == len(in.Samples) {
		return in, false
	}
	return in.Slice(start, end), true
}

// Bounds returns the half-open sample range [start, end) that survives
// trimming. start >= end means the whole input is silence.
func (t Trimmer) Bounds(samples []int16) (start, end int) {
	w := t.Window
	if w <= 0 {
		w = DefaultTrimWindow
	}
	n := len(samples)

	for start < n {
		stop := min(start+w, n)
		if audio.RMS(samples[start:stop]) > t.Threshold {
			break
		}
		start = stop
	}

	end = n
	for end > start {
		from := max(end-w, start)
		if audio.RMS(samples[from:end]) > t.Threshold {
			break
		}
		end = from
	}
	return start, end
}
