package cliplog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// maxLineSize bounds a single JSON line when reading the log back.
const maxLineSize = 1 << 20

// FileStore persists entries as append-only JSON lines in a local file.
// Safe for concurrent use within one process.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore that writes to the given path. The file
// is created on the first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the file the store writes to.
func (s *FileStore) Path() string { return s.path }

// Append implements [Store].
func (s *FileStore) Append(_ context.Context, e Entry) error {
	stamp(&e, s.now)
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cliplog: marshal: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cliplog: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("cliplog: write: %w", err)
	}
	return nil
}

// Recent implements [Store]. Lines that fail to decode are skipped with a
// warning. A missing file yields no entries.
func (s *FileStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit = normalizeLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cliplog: open file: %w", err)
	}
	defer f.Close()

	// Keep a ring of the last limit entries while scanning forward.
	ring := make([]Entry, 0, limit)
	next := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			slog.Warn("cliplog: skipping malformed line", "path", s.path, "line", line, "error", err)
			continue
		}
		if len(ring) < limit {
			ring = append(ring, e)
		} else {
			ring[next] = e
		}
		next = (next + 1) % limit
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cliplog: read file: %w", err)
	}

	out := make([]Entry, 0, len(ring))
	for i := range len(ring) {
		idx := (next - 1 - i + 2*len(ring)) % len(ring)
		out = append(out, ring[idx])
	}
	return out, nil
}
