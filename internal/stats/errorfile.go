package stats

import (
	"fmt"
	"os"
	"sync"
)

// ErrorFile is the missing-objects output file: one URL-encoded path per
// line, appended, flushed after every record.
type ErrorFile struct {
	mu sync.Mutex
	f  *os.File
}

// OpenErrorFile opens path in append mode, creating it if necessary.
func OpenErrorFile(path string) (*ErrorFile, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open error-file %s: %s", path, err)
	}
	return &ErrorFile{f: f}, nil
}

// Record appends one URL-encoded path and flushes immediately.
func (e *ErrorFile) Record(encodedPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := fmt.Fprintln(e.f, encodedPath); err != nil {
		return err
	}
	return e.f.Sync()
}

// Close closes the underlying file.
func (e *ErrorFile) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.f.Close()
}
