package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/giygas/ddi-engine/config"
)

func logFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read log directory: %v", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) && strings.HasSuffix(e.Name(), fileSuffix) {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestGetWeekKey(t *testing.T) {
	// 2025-10-07 is in ISO week 41
	if got := getWeekKey(time.Date(2025, 10, 7, 12, 0, 0, 0, time.UTC)); got != "2025-W41" {
		t.Errorf("Expected 2025-W41, got %s", got)
	}
	// 2027-01-01 still belongs to the last ISO week of 2026
	if got := getWeekKey(time.Date(2027, 1, 1, 12, 0, 0, 0, time.UTC)); got != "2026-W53" {
		t.Errorf("Expected 2026-W53, got %s", got)
	}
}

func TestRotatingLoggerWritesWeeklyFile(t *testing.T) {
	dir := t.TempDir()
	rl := NewRotatingLogger(dir, 1)
	if err := rl.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := rl.Write([]byte("pair resolved\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "ddi-"+getWeekKey(time.Now())+".log")
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected %s: %v", path, err)
	}
	if !strings.Contains(string(content), "pair resolved") {
		t.Errorf("Log file does not contain the message: %q", content)
	}
}

func TestRotatingLoggerSizeRollover(t *testing.T) {
	dir := t.TempDir()
	rl := NewRotatingLoggerWithSizeLimit(dir, 1, 100)
	defer func() { _ = rl.Close() }()

	if _, err := rl.Write([]byte("small message")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := rl.Write([]byte(strings.Repeat("a long line that will not fit. ", 10))); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := rl.Write([]byte("after the rollover")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	week := getWeekKey(time.Now())
	files := logFiles(t, dir)
	want := map[string]bool{
		"ddi-" + week + ".log":    true,
		"ddi-" + week + "_01.log": true,
		"ddi-" + week + "_02.log": true,
	}
	if len(files) != len(want) {
		t.Fatalf("Expected %d files, got %v", len(want), files)
	}
	for _, f := range files {
		if !want[f] {
			t.Errorf("Unexpected log file %s", f)
		}
	}
}

func TestRotatingLoggerResumesNumberedFile(t *testing.T) {
	dir := t.TempDir()
	week := getWeekKey(time.Now())

	full := filepath.Join(dir, fmt.Sprintf("ddi-%s.log", week))
	if err := os.WriteFile(full, []byte(strings.Repeat("x", 200)), 0644); err != nil {
		t.Fatal(err)
	}
	partial := filepath.Join(dir, fmt.Sprintf("ddi-%s_03.log", week))
	if err := os.WriteFile(partial, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	rl := NewRotatingLoggerWithSizeLimit(dir, 1, 100)
	if err := rl.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := rl.Write([]byte("resumed")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = rl.Close()

	content, _ := os.ReadFile(partial)
	if string(content) != "xresumed" {
		t.Errorf("Expected the numbered file to be resumed, got %q", content)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "ddi-2025-W30.log")
	current := filepath.Join(dir, "ddi-"+getWeekKey(time.Now())+".log")
	unrelated := filepath.Join(dir, "other-2025-W30.log")
	for _, p := range []string{old, current, unrelated} {
		if err := os.WriteFile(p, []byte("entry"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-30 * 24 * time.Hour)
	_ = os.Chtimes(old, past, past)
	_ = os.Chtimes(unrelated, past, past)

	rl := NewRotatingLogger(dir, 1)
	if err := rl.cleanupOldLogs(); err != nil {
		t.Fatalf("cleanupOldLogs: %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("Expected the old log file to be removed")
	}
	if _, err := os.Stat(current); err != nil {
		t.Error("Current log file was removed")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("Files without the log prefix must be left alone")
	}
}

func TestRotatingLoggerInvalidDirectory(t *testing.T) {
	rl := NewRotatingLogger("/proc/ddi-engine/does-not-exist", 1)
	if err := rl.Open(); err == nil {
		t.Error("Expected an error opening an invalid directory")
	}
	if _, err := rl.Write([]byte("message")); err == nil {
		t.Error("Expected an error writing to an invalid directory")
	}
	if err := rl.Close(); err != nil {
		t.Errorf("Close should succeed, got %v", err)
	}
}

func TestRotatingLoggerConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	rl := NewRotatingLogger(dir, 1)
	defer func() { _ = rl.Close() }()

	var wg sync.WaitGroup
	for g := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 5 {
				_, _ = rl.Write([]byte(fmt.Sprintf("goroutine %d write %d\n", g, i)))
			}
		}()
	}
	wg.Wait()

	content, err := os.ReadFile(filepath.Join(dir, "ddi-"+getWeekKey(time.Now())+".log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if lines := strings.Count(string(content), "\n"); lines != 50 {
		t.Errorf("Expected 50 lines, got %d", lines)
	}
}

func TestInitLoggerWithOptions(t *testing.T) {
	dir := t.TempDir()
	InitLoggerWithOptions(Options{Dir: dir, Env: config.EnvTest, RetentionWeeks: 2, MaxFileSize: 1024 * 1024})
	t.Cleanup(func() {
		_ = Close()
		InitLogger("")
	})

	if DefaultLoggingService == nil {
		t.Fatal("DefaultLoggingService was not initialized")
	}

	Debug("debug reaches the file")
	Info("info reaches the file")

	content, err := os.ReadFile(filepath.Join(dir, "ddi-"+getWeekKey(time.Now())+".log"))
	if err != nil {
		t.Fatalf("Expected a log file: %v", err)
	}
	if !strings.Contains(string(content), "debug reaches the file") || !strings.Contains(string(content), `"level":"INFO"`) {
		t.Errorf("Unexpected file content %s", content)
	}
}

func TestInitLoggerConsoleOnly(t *testing.T) {
	InitLogger("")
	if DefaultLoggingService == nil || DefaultLoggingService.file != nil {
		t.Error("Expected a console-only logger")
	}
	if err := Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestMultiHandler(t *testing.T) {
	var quiet, loud strings.Builder
	multi := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&quiet, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&loud, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}}

	if !multi.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected debug to be enabled by one handler")
	}

	logger := slog.New(multi).With("component", "cache").WithGroup("pair")
	logger.Info("computed", "key", "abc")

	if quiet.Len() != 0 {
		t.Errorf("Error-level handler should skip info, got %s", quiet.String())
	}
	if !strings.Contains(loud.String(), "component=cache") || !strings.Contains(loud.String(), "pair.key=abc") {
		t.Errorf("Expected attrs and group to propagate, got %s", loud.String())
	}
}
