// Package profiling captures CPU and memory profiles around a batch run.
package profiling

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
)

// Profile file names written into the session directory.
const (
	CPUFile    = "cpu.pprof"
	HeapFile   = "heap.pprof"
	AllocsFile = "allocs.pprof"
)

// Session is an active CPU profile plus the heap snapshots taken on Stop.
type Session struct {
	dir     string
	cpuFile *os.File
}

// Start creates dir and begins CPU profiling into it.
func Start(dir string) (*Session, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, CPUFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}

	return &Session{dir: dir, cpuFile: f}, nil
}

// Dir returns the directory profiles are written to.
func (s *Session) Dir() string {
	return s.dir
}

// Stop ends CPU profiling and writes heap and allocation profiles.
// Calling Stop twice is a no-op.
func (s *Session) Stop() error {
	if s.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := s.cpuFile.Close()
	s.cpuFile = nil

	// GC first so the heap profile shows live objects only
	runtime.GC()
	return errors.Join(err,
		writeProfile(filepath.Join(s.dir, HeapFile), "heap"),
		writeProfile(filepath.Join(s.dir, AllocsFile), "allocs"))
}

func writeProfile(path, name string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s profile file: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if err := pprof.Lookup(name).WriteTo(f, 0); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", name, err)
	}
	return nil
}

// HeapInUse returns the bytes of live heap objects.
func HeapInUse() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapInuse
}

// FormatBytes formats bytes into human-readable form.
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
