package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.addresolve/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".addresolve", "logs")
	}
	return filepath.Join(home, ".addresolve", "logs")
}

// DefaultLogPath returns the default log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "addresolve.log")
}

// FindLogFile returns explicit if it exists, otherwise the default log path.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	p := DefaultLogPath()
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}

	return "", fmt.Errorf("no log file found, run with --debug first (expected at %s)", p)
}
