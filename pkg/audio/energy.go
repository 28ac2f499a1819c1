package audio

import "math"

// Int16 sample range.
const (
	MaxSample = math.MaxInt16
	MinSample = math.MinInt16
)

// RMS returns the root-mean-square amplitude of samples on the 16-bit scale.
// It returns 0 for an empty slice.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the largest absolute sample value.
func Peak(samples []int16) int {
	peak := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Clamp16 rounds v to the nearest integer and clamps it to the int16 range.
func Clamp16(v float64) int16 {
	v = math.Round(v)
	if v > MaxSample {
		return MaxSample
	}
	if v < MinSample {
		return MinSample
	}
	return int16(v)
}

// ClampPeak rounds v to the nearest integer and clamps it to ±MaxSample, so
// the result can always be negated without overflow.
func ClampPeak(v float64) int16 {
	return int16(max(-MaxSample, min(MaxSample, math.Round(v))))
}
