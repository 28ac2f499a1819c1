package capture

import (
	"slices"
	"time"

	"github.com/MrWong99/voxcap/pkg/audio/dsp"
)

// Preset names.
const (
	PresetDefault  = "default"
	PresetNAO      = "nao"
	PresetLongForm = "long-form"
)

// DefaultConfig returns the responsive desktop preset: 16 kHz mono, 50 ms
// polling, a 250 ms calibration window and an 8 s long-trail switch.
func DefaultConfig() Config {
	return Config{
		SampleRate:             16000,
		Channels:               1,
		CalibrationWindow:      250 * time.Millisecond,
		PollInterval:           50 * time.Millisecond,
		NoSpeechTimeout:        8 * time.Second,
		MinClipDuration:        500 * time.Millisecond,
		HardCap:                120 * time.Second,
		StartFloor:             3000,
		KeepFloor:              1800,
		StartBonus:             900,
		KeepMargin:             0.6,
		ShortTrail:             600 * time.Millisecond,
		LongTrail:              800 * time.Millisecond,
		LongTrailSwitch:        8 * time.Second,
		TrimFraction:           0.17,
		PreEmphasis:            true,
		PreEmphasisCoefficient: dsp.DefaultPreEmphasis,
		AGC:                    true,
		AGCTargetRMS:           dsp.DefaultTargetRMS,
		AGCMaxGain:             dsp.DefaultMaxGain,
	}
}

var presets = map[string]func() Config{
	PresetDefault: DefaultConfig,

	// Fixed thresholds tuned for a robot head microphone with fan noise:
	// no calibration, a single 800 ms trailing window and a short
	// no-speech timeout.
	PresetNAO: func() Config {
		c := DefaultConfig()
		c.CalibrationWindow = 0
		c.NoSpeechTimeout = 3 * time.Second
		c.HardCap = 60 * time.Second
		c.ShortTrail = 800 * time.Millisecond
		c.LongTrail = 800 * time.Millisecond
		c.PreEmphasis = false
		c.AGC = false
		c.PeakNormalize = true
		return c
	},

	// Dictation: generous pauses and a ten minute cap.
	PresetLongForm: func() Config {
		c := DefaultConfig()
		c.NoSpeechTimeout = 10 * time.Second
		c.HardCap = 600 * time.Second
		c.ShortTrail = 800 * time.Millisecond
		c.LongTrail = 1500 * time.Millisecond
		return c
	},
}

// Preset returns the named preset.
func Preset(name string) (Config, bool) {
	fn, ok := presets[name]
	if !ok {
		return Config{}, false
	}
	return fn(), true
}

// PresetNames returns the known preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
