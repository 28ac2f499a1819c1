package config

import (
	"fmt"

	"github.com/MrWong99/voxcap/internal/capture"
)

// Resolve returns the capture configuration described by c: the preset's
// values with every set field of c applied on top. The result is not
// validated; see [capture.Config.Validate].
func (c CaptureConfig) Resolve() (capture.Config, error) {
	name := c.Preset
	if name == "" {
		name = capture.PresetDefault
	}
	out, ok := capture.Preset(name)
	if !ok {
		return capture.Config{}, fmt.Errorf("capture.preset %q is unknown; valid values: %v", name, capture.PresetNames())
	}

	setInt(&out.SampleRate, c.SampleRate)
	setInt(&out.Channels, c.Channels)
	if c.CalibrationWindow != nil {
		out.CalibrationWindow = *c.CalibrationWindow
	}
	setNonZero(&out.PollInterval, c.PollInterval)
	setNonZero(&out.NoSpeechTimeout, c.NoSpeechTimeout)
	if c.MinClipDuration != nil {
		out.MinClipDuration = *c.MinClipDuration
	}
	setNonZero(&out.HardCap, c.HardCap)

	setNonZero(&out.StartFloor, c.StartFloor)
	setNonZero(&out.KeepFloor, c.KeepFloor)
	setNonZero(&out.StartBonus, c.StartBonus)
	setNonZero(&out.KeepMargin, c.KeepMargin)

	setNonZero(&out.ShortTrail, c.ShortTrail)
	setNonZero(&out.LongTrail, c.LongTrail)
	setNonZero(&out.LongTrailSwitch, c.LongTrailSwitch)

	setNonZero(&out.TrimFraction, c.TrimFraction)
	setBool(&out.NoiseGate, c.NoiseGate)

	setBool(&out.PreEmphasis, c.PreEmphasis.Enabled)
	setNonZero(&out.PreEmphasisCoefficient, c.PreEmphasis.Coefficient)

	setBool(&out.AGC, c.AGC.Enabled)
	setNonZero(&out.AGCTargetRMS, c.AGC.TargetRMS)
	setNonZero(&out.AGCMaxGain, c.AGC.MaxGain)

	setBool(&out.PeakNormalize, c.PeakNormalize)
	// Turning peak normalisation on without mentioning AGC selects it
	// instead of AGC rather than failing validation.
	if c.PeakNormalize != nil && *c.PeakNormalize && c.AGC.Enabled == nil {
		out.AGC = false
	}
	return out, nil
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setNonZero[T ~int64 | ~float64](dst *T, v T) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
