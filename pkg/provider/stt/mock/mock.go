// Package mock provides a test double for the stt.Provider interface.
//
// Provider records every Transcribe call and returns either a fixed
// transcript, a scripted sequence of results, or an error.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Transcript{Text: "turn on the lights"}}
//	tr, _ := p.Transcribe(ctx, stt.Request{Audio: clip})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxcap/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is a copy of the request; Req.Audio is cloned.
	Req stt.Request
}

// Step is one scripted outcome of Transcribe.
type Step struct {
	Result stt.Transcript
	Err    error
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Result is returned by Transcribe when Script is exhausted.
	Result stt.Transcript

	// Err, if non-nil, is returned by Transcribe when Script is exhausted.
	Err error

	// Script lists outcomes returned by successive calls before falling back
	// to Result and Err.
	Script []Step

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Name implements stt.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Transcribe records the call and returns the next scripted outcome.
// A cancelled ctx is returned as the error without consuming the script.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := req
	cp.Audio = req.Audio.Clone()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: cp})

	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	if len(p.Script) > 0 {
		s := p.Script[0]
		p.Script = p.Script[1:]
		return s.Result, s.Err
	}
	return p.Result, p.Err
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}
