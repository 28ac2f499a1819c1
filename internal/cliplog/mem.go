package cliplog

import (
	"context"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// MemStore keeps the most recent entries in memory. Older entries are
// dropped once capacity is reached.
type MemStore struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	now     func() time.Time
}

// NewMemStore creates a MemStore holding at most capacity entries
// (minimum 1).
func NewMemStore(capacity int) *MemStore {
	return &MemStore{entries: make([]Entry, max(capacity, 1)), now: time.Now}
}

// Append implements [Store].
func (s *MemStore) Append(_ context.Context, e Entry) error {
	stamp(&e, s.now)
	e.Stages = append([]string(nil), e.Stages...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[s.next] = e
	s.next = (s.next + 1) % len(s.entries)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent implements [Store].
func (s *MemStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	limit = normalizeLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	if s.full {
		n = len(s.entries)
	}
	limit = min(limit, n)
	out := make([]Entry, 0, limit)
	for i := range limit {
		idx := (s.next - 1 - i + len(s.entries)) % len(s.entries)
		out = append(out, s.entries[idx])
	}
	return out, nil
}
