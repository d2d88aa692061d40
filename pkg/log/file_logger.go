package log

import (
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends lifecycle events to a .nlog file as CBOR records.
// Close ends the session with a SessionSummary trailer so that readers
// can tell how many events the transport lost. Safe for concurrent use.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
	written int
	dropped int
}

// NewFileLogger opens path for appending, creating it with mode 0644.
// Several sessions may append to the same file.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{file: f, encoder: NewEncoder(f)}, nil
}

// Log appends an event. Connections closing after Close still log their
// last state change; those events are counted as dropped.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		l.dropped++
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := l.encoder.Encode(event); err != nil {
		l.dropped++
		return
	}
	l.written++
}

// Written returns how many events reached the file.
func (l *FileLogger) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Dropped returns how many events were lost.
func (l *FileLogger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close writes the session trailer and closes the file. Safe to call
// more than once.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	trailer := Event{
		Timestamp: time.Now(),
		Stage:     StageClose,
		Summary:   &SessionSummary{Written: l.written, Dropped: l.dropped},
	}
	encErr := l.encoder.Encode(trailer)
	if err := l.file.Close(); err != nil {
		return err
	}
	return encErr
}

// Compile-time interface satisfaction check.
var _ Logger = (*FileLogger)(nil)
