package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// RotatingWriter is an io.Writer that rotates its file once it grows past
// a size limit, keeping at most maxFiles numbered backups.
type RotatingWriter struct {
	path     string
	maxSize  int64
	maxFiles int

	mu            sync.Mutex
	file          *os.File
	written       int64
	immediateSync bool
}

// NewRotatingWriter opens (or creates) path for appending.
// Each write is fsynced until SetImmediateSync(false) is called.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:          path,
		maxSize:       int64(maxSizeMB) << 20,
		maxFiles:      maxFiles,
		immediateSync: true,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// SetImmediateSync enables or disables fsync after each write.
func (w *RotatingWriter) SetImmediateSync(enabled bool) {
	w.mu.Lock()
	w.immediateSync = enabled
	w.mu.Unlock()
}

// Write implements io.Writer, rotating first when p would exceed the size limit.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}
	if w.file == nil {
		if err := w.open(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.written += int64(n)
	if err == nil && w.immediateSync {
		_ = w.file.Sync()
	}
	return n, err
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Sync flushes the file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.written = info.Size()
	return nil
}

// backups returns the numbered backups of the log file, highest number first.
func (w *RotatingWriter) backups() ([]int, error) {
	prefix := filepath.Base(w.path) + "."
	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return nil, fmt.Errorf("failed to find rotated files: %w", err)
	}

	nums := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(m), prefix))
		if err == nil {
			nums = append(nums, n)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(nums)))
	return nums, nil
}

// rotate shifts addresolve.log -> addresolve.log.1 -> addresolve.log.2 ...
// and drops backups numbered maxFiles or above.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		w.file = nil
	}

	nums, err := w.backups()
	if err != nil {
		return err
	}
	for _, n := range nums {
		old := fmt.Sprintf("%s.%d", w.path, n)
		if n >= w.maxFiles {
			_ = os.Remove(old)
			continue
		}
		_ = os.Rename(old, fmt.Sprintf("%s.%d", w.path, n+1))
	}

	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, w.path+".1"); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	w.written = 0
	return w.open()
}
