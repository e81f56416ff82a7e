// Package audit writes the run's event stream to an append-only JSONL file.
// Envelopes arrive already redacted, so the audit trail is safe to ship.
package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kadirpekel/tabula/pkg/event"
)

// Writer appends one JSON line per envelope to a log file.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewWriter opens (or creates) the audit log at path, creating parent
// directories as needed.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &Writer{file: file, path: path}, nil
}

// Subscribe attaches the writer to every event on the bus, returning the
// unsubscribe func. Write failures are logged and never interrupt dispatch.
func (w *Writer) Subscribe(bus *event.Bus) func() {
	return bus.OnAll(func(env *event.Envelope) {
		if err := w.Write(env); err != nil {
			slog.Warn("audit write failed", "path", w.path, "error", err)
		}
	})
}

// Write appends one envelope as a JSON line.
func (w *Writer) Write(env *event.Envelope) error {
	raw, err := env.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("failed to append audit line: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
