// Package journal appends raw telemetry snapshots to daily JSONL files.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer appends one JSON document per line to <dir>/telemetry-YYYY-MM-DD.jsonl.
// It is safe for concurrent use.
type Writer struct {
	dir string
	now func() time.Time

	mu sync.Mutex
}

// New returns a Writer rooted at dir. The directory is created on first write.
func New(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Append writes v as a single line and returns the file it was written to.
func (w *Writer) Append(v any) (string, error) {
	line, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode journal entry: %w", err)
	}
	line = append(line, '\n')

	path := filepath.Join(w.dir, FileName(w.now()))

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open journal file: %w", err)
	}
	_, werr := f.Write(line)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return "", fmt.Errorf("write journal file: %w", err)
	}
	return path, nil
}

// FileName returns the journal file name for the UTC day of t.
func FileName(t time.Time) string {
	return "telemetry-" + t.UTC().Format("2006-01-02") + ".jsonl"
}
