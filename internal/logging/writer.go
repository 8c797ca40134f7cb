package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// RotatingWriter is an io.WriteCloser that appends to a log file and shifts
// it to numbered backups (<path>.1, <path>.2, ...) once it grows past a
// size limit. Backups beyond maxBackups are removed.
type RotatingWriter struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	size       int64
	maxBytes   int64
	maxBackups int
}

// NewRotatingWriter opens path for appending, creating it and its directory
// if needed.
func NewRotatingWriter(path string, maxSizeMB, maxBackups int) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		path:       path,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) open() error {
	f, err := os.OpenFile(rw.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rw.file = f
	rw.size = info.Size()
	return nil
}

// Write implements io.Writer. A record is never split across files: the
// file is rotated before a write that would cross the limit, unless the
// file is still empty.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.size > 0 && rw.size+int64(len(p)) > rw.maxBytes {
		if err := rw.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// Close closes the underlying file.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}

func (rw *RotatingWriter) backup(n int) string {
	return rw.path + "." + strconv.Itoa(n)
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}

	if rw.maxBackups == 0 {
		os.Remove(rw.path) //nolint:errcheck
	} else {
		os.Remove(rw.backup(rw.maxBackups)) //nolint:errcheck
		for i := rw.maxBackups - 1; i >= 1; i-- {
			os.Rename(rw.backup(i), rw.backup(i+1)) //nolint:errcheck
		}
		if err := os.Rename(rw.path, rw.backup(1)); err != nil {
			return fmt.Errorf("rotating log file: %w", err)
		}
	}

	return rw.open()
}
