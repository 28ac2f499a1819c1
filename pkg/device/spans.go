package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/voxcap/pkg/audio"
)

// Span is the time range and format of one finished recording.
type Span struct {
	Start  time.Time
	Stop   time.Time
	Format audio.Format
}

// Spans tracks start/stop bookkeeping for devices that synthesise recorded
// audio from a timeline rather than buffering it live. The zero value is
// ready to use and safe for concurrent use.
type Spans struct {
	mu        sync.Mutex
	recording bool
	dest      string
	current   Span
	done      map[string]Span
}

// Start begins a span for dest at now, first closing any open span.
func (s *Spans) Start(now time.Time, dest string, format audio.Format) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording {
		s.closeLocked(now)
	}
	s.recording = true
	s.dest = dest
	s.current = Span{Start: now, Format: format}
}

// Stop closes the open span at now. It reports whether a span was open.
func (s *Spans) Stop(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording {
		return false
	}
	s.closeLocked(now)
	return true
}

// Recording reports whether a span is open.
func (s *Spans) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Get returns the finished span recorded to dest.
func (s *Spans) Get(dest string) (Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording && s.dest == dest {
		return Span{}, fmt.Errorf("device: %q is still recording", dest)
	}
	sp, ok := s.done[dest]
	if !ok {
		return Span{}, fmt.Errorf("%w: %q", ErrUnknownDestination, dest)
	}
	return sp, nil
}

func (s *Spans) closeLocked(now time.Time) {
	if s.done == nil {
		s.done = make(map[string]Span)
	}
	s.current.Stop = now
	s.done[s.dest] = s.current
	s.recording = false
	s.dest = ""
}
