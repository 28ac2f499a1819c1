// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (a local whisper.cpp server
// or model, OpenAI, or Deepgram) and exposes a uniform batch interface: one
// finished clip in, one [Transcript] out. Captured clips are short and
// complete by the time they are transcribed, so there is no streaming
// session to manage.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/voxcap/pkg/audio"
)

// ErrEmptyAudio is returned by providers asked to transcribe a clip without
// samples.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Request is one transcription request.
type Request struct {
	// Audio is the clip to transcribe. Providers resample or downmix
	// internally when their backend needs a specific format.
	Audio audio.Buffer

	// Language is the BCP-47 language tag for recognition (e.g., "en",
	// "de-DE"). An empty string uses the provider's default, which may be
	// auto-detection.
	Language string

	// Keywords is a list of vocabulary hints for providers that support
	// boosting. Providers that do not ignore it.
	Keywords []KeywordBoost
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Name identifies the provider in logs, metrics and provenance entries.
	Name() string

	// Transcribe converts the request audio to text. An empty transcript
	// with a nil error means the provider heard nothing intelligible.
	//
	// Returns an error if the request cannot be completed (e.g.,
	// authentication failure, network error, or ctx cancelled).
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
