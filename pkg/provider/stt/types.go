package stt

import "time"

// Transcript is the result of transcribing one clip.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Provider names the backend that produced the transcript. Set by
	// wrappers that choose between several backends.
	Provider string

	// Language is the detected or requested language, when the provider
	// reports it.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when available (Deepgram).
	// May be nil for providers that don't support word-level output.
	Words []WordDetail

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// Empty reports whether the transcript has no text.
func (t Transcript) Empty() bool { return t.Text == "" }

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost represents a keyword to boost in STT recognition, such as a
// product name or a user's own name.
type KeywordBoost struct {
	// Keyword is the text to boost.
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
