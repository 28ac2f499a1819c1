package app

import (
	"context"
	"errors"
	"net/http"

	oai "github.com/openai/openai-go"

	"github.com/MrWong99/voxcap/internal/config"
	"github.com/MrWong99/voxcap/internal/observe"
	"github.com/MrWong99/voxcap/internal/resilience"
	"github.com/MrWong99/voxcap/pkg/audio/wav"
	"github.com/MrWong99/voxcap/pkg/provider/stt"
	"github.com/MrWong99/voxcap/pkg/provider/stt/whisper"
)

// measuredSTT counts every call to the wrapped backend and marks errors
// that no retry or other backend can fix as permanent.
type measuredSTT struct {
	stt.Provider
	metrics *observe.Metrics
}

func (m measuredSTT) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	tr, err := m.Provider.Transcribe(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.metrics.RecordProviderRequest(ctx, m.Provider.Name(), status)
	if err != nil && isRequestError(err) {
		return tr, resilience.Permanent(err)
	}
	return tr, err
}

// isRequestError reports whether err blames the request rather than the
// backend.
func isRequestError(err error) bool {
	if errors.Is(err, stt.ErrEmptyAudio) || errors.Is(err, wav.ErrInvalid) || errors.Is(err, wav.ErrTooShort) {
		return true
	}
	var herr *whisper.HTTPError
	if errors.As(err, &herr) {
		return badRequestStatus(herr.StatusCode)
	}
	var oerr *oai.Error
	if errors.As(err, &oerr) {
		return badRequestStatus(oerr.StatusCode)
	}
	return false
}

func badRequestStatus(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// newTranscriber chains the backends behind per-backend circuit breakers.
// It returns nil when no backend is configured.
func newTranscriber(backends []stt.Provider, cb config.CircuitBreakerConfig, m *observe.Metrics) *resilience.STTFallback {
	if len(backends) == 0 {
		return nil
	}
	fcfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cb.MaxFailures,
			ResetTimeout: cb.ResetTimeout,
			HalfOpenMax:  cb.HalfOpenMax,
			OnStateChange: func(name string, _, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}
	fb := resilience.NewSTTFallback(measuredSTT{Provider: backends[0], metrics: m}, fcfg)
	for _, p := range backends[1:] {
		fb.AddFallback(measuredSTT{Provider: p, metrics: m})
	}
	return fb
}
