package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()

	if !strings.Contains(path, ".addresolve") || !strings.Contains(path, "logs") {
		t.Errorf("DefaultLogPath should live under .addresolve/logs, got: %s", path)
	}
	if filepath.Base(path) != "addresolve.log" {
		t.Errorf("DefaultLogPath should end with addresolve.log, got: %s", path)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level info, got %s", cfg.Level)
	}
	if cfg.MaxSizeMB != 10 || cfg.MaxFiles != 5 {
		t.Errorf("unexpected rotation defaults: %d MB, %d files", cfg.MaxSizeMB, cfg.MaxFiles)
	}
	if DebugConfig().Level != "debug" {
		t.Error("DebugConfig should use debug level")
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	logger, cleanup, err := Setup(Config{
		Level:    "debug",
		FilePath: logPath,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Debug("batch resolved", slog.String("strategy", "per-item"), slog.Int("items", 3))
	cleanup()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, data)
	}
	if entry["msg"] != "batch resolved" || entry["strategy"] != "per-item" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestSetup_LevelFiltersDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "info.log")

	logger, cleanup, err := Setup(Config{Level: "info", FilePath: logPath})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Debug("hidden")
	logger.Warn("shown")
	cleanup()

	data, _ := os.ReadFile(logPath)
	if strings.Contains(string(data), "hidden") {
		t.Error("debug entry should be filtered at info level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("warn entry should be written")
	}
}

func TestSetup_NoFileFallsBackToStderr(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "error"})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	if logger == nil {
		t.Fatal("Setup returned nil logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupServeMode_UsesGivenPath(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logPath := filepath.Join(t.TempDir(), "serve.log")
	cleanup, err := SetupServeMode(Config{Level: "debug", FilePath: logPath})
	if err != nil {
		t.Fatalf("SetupServeMode failed: %v", err)
	}
	slog.Info("tool called")
	cleanup()

	data, _ := os.ReadFile(logPath)
	if !strings.Contains(string(data), "serve_logging_initialized") ||
		!strings.Contains(string(data), "tool called") {
		t.Errorf("unexpected serve log contents: %s", data)
	}
}

func TestFindLogFile_ExplicitPath(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "x.log")
	if err := os.WriteFile(logPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FindLogFile(logPath)
	if err != nil || got != logPath {
		t.Errorf("FindLogFile(%q) = %q, %v", logPath, got, err)
	}
	if _, err := FindLogFile(logPath + ".missing"); err == nil {
		t.Error("expected error for missing explicit path")
	}
}

func TestRotatingWriter_Rotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotate.log")

	// 0 MB rotates on every write
	w, err := NewRotatingWriter(logPath, 0, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	data := bytes.Repeat([]byte("x"), 2048)
	for i := 0; i < 2; i++ {
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(logPath); err != nil {
		t.Error("main log file should exist")
	}
	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Error("rotated file .1 should exist")
	}
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "maxfiles.log")

	w, err := NewRotatingWriter(logPath, 0, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	data := bytes.Repeat([]byte("y"), 1024)
	for i := 0; i < 6; i++ {
		_, _ = w.Write(data)
	}

	if _, err := os.Stat(logPath + ".2"); err != nil {
		t.Error("rotated file .2 should exist")
	}
	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("rotated file .3 should not exist (beyond maxFiles)")
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "reopen.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close should be a no-op: %v", err)
	}

	if _, err := w.Write([]byte("late\n")); err != nil {
		t.Fatalf("write after close should reopen: %v", err)
	}
	_ = w.Close()

	data, _ := os.ReadFile(logPath)
	if string(data) != "late\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	w.SetImmediateSync(false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = w.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
	_ = w.Sync()
	_ = w.Close()

	data, _ := os.ReadFile(logPath)
	if got := strings.Count(string(data), "line\n"); got != 200 {
		t.Errorf("expected 200 lines, got %d", got)
	}
}
