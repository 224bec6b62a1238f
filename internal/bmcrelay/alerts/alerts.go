// Package alerts mirrors generic events to an operator-facing log file, one
// fixed-format line per event, independent of the bus.
//
// A mutex-guarded io.Writer wrapper lets concurrent lanes share one
// destination without interleaving partial lines, plus size-based rotation
// so the file does not grow without bound across a long-running process.
package alerts

import (
	"fmt"
	"log/slog"
	"sync"
)

// Writer appends one line per generic event to its destination. It is safe
// for concurrent use by multiple lanes.
type Writer struct {
	mu     sync.Mutex
	file   *RotatingFile
	logger *slog.Logger
}

// Open creates (or appends to) the alerts file at path, rotating it once it
// exceeds maxBytes (0 disables rotation).
func Open(path string, maxBytes int64, maxBackups int, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	rf, err := NewRotatingFile(RotateConfig{FilePath: path, MaxBytes: maxBytes, MaxBackups: maxBackups}, logger)
	if err != nil {
		return nil, fmt.Errorf("alerts: %w", err)
	}
	return &Writer{file: rf, logger: logger}, nil
}

// WriteLine appends line followed by a newline.
func (w *Writer) WriteLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Write([]byte(line)); err != nil {
		w.logger.Error("alerts: write failed", "error", err.Error())
		return fmt.Errorf("alerts: write: %w", err)
	}
	if _, err := w.file.Write([]byte("\n")); err != nil {
		w.logger.Error("alerts: newline write failed", "error", err.Error())
		return fmt.Errorf("alerts: write newline: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.file.Close()
}

// Write implements io.Writer so a Writer can be plugged directly into
// ingest.LaneConfig.Alerts without an adapter. Callers are responsible for
// including their own line terminator.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Write(p)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
