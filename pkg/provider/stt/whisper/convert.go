package whisper

// toFloat32 converts 16-bit samples to float32 normalised to [-1.0, 1.0).
func toFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
