package logger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	// DefaultBufferSize batches file writes without holding much memory
	DefaultBufferSize = 32 * 1024

	// DefaultFlushInterval is the period of the background flush
	DefaultFlushInterval = 5 * time.Second

	// LogFilePermissions restricts log files to the owner
	LogFilePermissions = 0o600
)

// BufferedFileWriter wraps a file with buffered I/O and a periodic flush.
// It is safe for concurrent use.
type BufferedFileWriter struct {
	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	stopFlush chan struct{}
	flushDone chan struct{}
	closed    bool
}

// NewBufferedFileWriter opens filePath in append mode and starts the flush loop.
func NewBufferedFileWriter(filePath string, flushInterval time.Duration) (*BufferedFileWriter, error) {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}

	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	w := &BufferedFileWriter{
		file:      file,
		writer:    bufio.NewWriterSize(file, DefaultBufferSize),
		stopFlush: make(chan struct{}),
		flushDone: make(chan struct{}),
	}
	go w.autoFlushLoop(flushInterval)

	return w, nil
}

func (w *BufferedFileWriter) autoFlushLoop(interval time.Duration) {
	defer close(w.flushDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = w.Flush()
		case <-w.stopFlush:
			return
		}
	}
}

// Write implements io.Writer
func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, errors.New("write to closed log writer")
	}
	return w.writer.Write(p)
}

// Flush writes buffered data to the OS
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	return w.writer.Flush()
}

// Close stops the flush loop, flushes, syncs and closes the file.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stopFlush)
	<-w.flushDone

	var errs []error
	if err := w.writer.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	if err := w.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	return errors.Join(errs...)
}
