package resilience

import (
	"context"

	"github.com/MrWong99/voxcap/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend. The primary is registered under its own [stt.Provider.Name].
func NewSTTFallback(primary stt.Provider, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primary.Name(), cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(provider stt.Provider) {
	f.group.AddFallback(provider.Name(), provider)
}

// Name implements [stt.Provider].
func (f *STTFallback) Name() string { return "fallback" }

// Providers returns the backend names in failover order.
func (f *STTFallback) Providers() []string { return f.group.Names() }

// States returns each backend's circuit breaker state.
func (f *STTFallback) States() map[string]State { return f.group.States() }

// Transcribe sends req to the first healthy backend, failing over to the
// next on error. The returned transcript's Provider names the backend that
// served it.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	tr, name, err := ExecuteWithResult(ctx, f.group, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
	if err != nil {
		return stt.Transcript{}, err
	}
	tr.Provider = name
	return tr, nil
}
