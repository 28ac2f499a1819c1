// Package dsp implements the post-processing chain applied to a finished
// capture: silence trimming, noise gating, pre-emphasis, automatic gain
// control and peak normalisation.
//
// Every [Stage] is a pure function of its input buffer. A stage either
// returns a freshly allocated buffer or reports that it made no change, in
// which case the [Pipeline] forwards the previous buffer untouched. Stages
// never mutate their input, so independent clips can be processed in
// parallel (see [ProcessBatch]).
package dsp

import "github.com/MrWong99/voxcap/pkg/audio"

// Stage is one post-processing step.
type Stage interface {
	// Name identifies the stage in clip provenance and metrics.
	Name() string

	// Apply processes in. When changed is false the returned buffer must be
	// ignored and in used unchanged.
	Apply(in audio.Buffer) (out audio.Buffer, changed bool)
}

// Stage names as recorded in provenance.
const (
	StageTrim          = "trim"
	StageNoiseGate     = "noise_gate"
	StagePreEmphasis   = "pre_emphasis"
	StageAGC           = "agc"
	StagePeakNormalize = "peak_normalize"
)
