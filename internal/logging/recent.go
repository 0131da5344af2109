package logging

import (
	"bytes"
	"os"
	"sync"
)

// recentRecords keeps the last records written by the slog handler, one per
// Write call, for crash dumps.
type recentRecords struct {
	mu    sync.Mutex
	lines [][]byte
	next  int
	full  bool
}

func newRecentRecords(n int) *recentRecords {
	return &recentRecords{lines: make([][]byte, n)}
}

func (r *recentRecords) Write(p []byte) (int, error) {
	line := bytes.TrimRight(p, "\n")
	if len(line) == 0 {
		return len(p), nil
	}
	r.mu.Lock()
	r.lines[r.next] = append([]byte(nil), line...)
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
	return len(p), nil
}

// snapshot returns the kept records oldest first, newline terminated.
func (r *recentRecords) snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	var buf bytes.Buffer
	emit := func(lines [][]byte) {
		for _, l := range lines {
			buf.Write(l)
			buf.WriteByte('\n')
		}
	}
	if r.full {
		emit(r.lines[r.next:])
	}
	emit(r.lines[:r.next])
	return buf.Bytes()
}

// DumpRecent writes the most recent log records to path as JSON lines. It
// writes nothing when file logging is off.
func DumpRecent(path string) error {
	globalMu.RLock()
	recent := globalRecent
	globalMu.RUnlock()
	if recent == nil {
		return nil
	}
	return os.WriteFile(path, recent.snapshot(), 0o600)
}
