package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	filePrefix = "ddi-"
	fileSuffix = ".log"

	// DefaultMaxFileSize caps one log file before a numbered rollover
	DefaultMaxFileSize int64 = 100 * 1024 * 1024
)

var numberedFile = regexp.MustCompile(`^ddi-\d{4}-W\d{2}_(\d{2})\.log$`)

// RotatingLogger writes to one file per ISO week (ddi-YYYY-Www.log). A file
// that reaches maxFileSize rolls over to ddi-YYYY-Www_NN.log.
type RotatingLogger struct {
	logDir      string
	retention   time.Duration
	maxFileSize int64

	mu          sync.Mutex
	currentFile *os.File
	currentWeek string
	currentSize atomic.Int64

	ctx         context.Context
	cancel      context.CancelFunc
	started     atomic.Bool
	cleanupDone chan struct{}
}

// NewRotatingLogger creates a rotating logger with the default size limit
func NewRotatingLogger(logDir string, retentionWeeks int) *RotatingLogger {
	return NewRotatingLoggerWithSizeLimit(logDir, retentionWeeks, DefaultMaxFileSize)
}

// NewRotatingLoggerWithSizeLimit creates a rotating logger. maxFileSize <= 0
// disables size rollover.
func NewRotatingLoggerWithSizeLimit(logDir string, retentionWeeks int, maxFileSize int64) *RotatingLogger {
	ctx, cancel := context.WithCancel(context.Background())
	return &RotatingLogger{
		logDir:      logDir,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
		ctx:         ctx,
		cancel:      cancel,
		cleanupDone: make(chan struct{}),
	}
}

// getWeekKey returns the ISO week in YYYY-Www format
func getWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Open creates the log directory and opens the file of the current week
func (rl *RotatingLogger) Open() error {
	if err := os.MkdirAll(rl.logDir, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.rotate(getWeekKey(time.Now()), false)
}

// StartCleanup removes files past retention once a day until Close
func (rl *RotatingLogger) StartCleanup() {
	if rl.started.Swap(true) {
		return
	}
	go func() {
		defer close(rl.cleanupDone)
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-rl.ctx.Done():
				return
			case <-ticker.C:
				if err := rl.cleanupOldLogs(); err != nil {
					slog.Warn("Failed to clean up old logs", "error", err)
				}
			}
		}
	}()
}

// rotate switches to the file for week. Callers hold mu.
func (rl *RotatingLogger) rotate(week string, full bool) error {
	if rl.currentFile != nil {
		if err := rl.currentFile.Close(); err != nil {
			slog.Warn("Failed to close log file during rotation", "error", err)
		}
		rl.currentFile = nil
	}

	name := rl.pickFile(week, full)
	path := filepath.Join(rl.logDir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}

	rl.currentFile = file
	rl.currentWeek = week
	rl.currentSize.Store(0)
	if info, err := file.Stat(); err == nil {
		rl.currentSize.Store(info.Size())
	}
	return nil
}

// pickFile returns the file to append to for week. The base file is used
// until it is full, then the highest numbered file, then a new number.
func (rl *RotatingLogger) pickFile(week string, full bool) string {
	base := filePrefix + week + fileSuffix
	if !full && !rl.atLimit(filepath.Join(rl.logDir, base)) {
		return base
	}

	highest, lastPath := rl.highestNumbered(week)
	if lastPath != "" && !full && !rl.atLimit(lastPath) {
		return filepath.Base(lastPath)
	}
	return fmt.Sprintf("%s%s_%02d%s", filePrefix, week, highest+1, fileSuffix)
}

func (rl *RotatingLogger) atLimit(path string) bool {
	if rl.maxFileSize <= 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Size() >= rl.maxFileSize
}

func (rl *RotatingLogger) highestNumbered(week string) (int, string) {
	matches, _ := filepath.Glob(filepath.Join(rl.logDir, filePrefix+week+"_??"+fileSuffix))
	highest, last := 0, ""
	for _, m := range matches {
		sub := numberedFile.FindStringSubmatch(filepath.Base(m))
		if len(sub) < 2 {
			continue
		}
		if n, _ := strconv.Atoi(sub[1]); n > highest {
			highest, last = n, m
		}
	}
	return highest, last
}

// Write appends p to the current file, rotating first on a new week or when
// p would push the file past its size limit
func (rl *RotatingLogger) Write(p []byte) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	week := getWeekKey(time.Now())
	switch {
	case rl.currentFile == nil || rl.currentWeek != week:
		if err := rl.rotate(week, false); err != nil {
			return 0, err
		}
	case rl.maxFileSize > 0 && rl.currentSize.Load() > 0 && rl.currentSize.Load()+int64(len(p)) > rl.maxFileSize:
		if err := rl.rotate(week, true); err != nil {
			return 0, err
		}
	}

	n, err := rl.currentFile.Write(p)
	rl.currentSize.Add(int64(n))
	return n, err
}

// cleanupOldLogs removes log files not modified within the retention period
func (rl *RotatingLogger) cleanupOldLogs() error {
	entries, err := os.ReadDir(rl.logDir)
	if err != nil {
		return fmt.Errorf("read log directory: %w", err)
	}

	cutoff := time.Now().Add(-rl.retention)
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(rl.logDir, name)) == nil {
			deleted++
		}
	}

	if deleted > 0 {
		// console only, the file handler may be the one being cleaned
		fmt.Printf("Cleaned up %d old log files\n", deleted)
	}
	return nil
}

// Close stops the cleanup goroutine and closes the current file
func (rl *RotatingLogger) Close() error {
	rl.cancel()
	if rl.started.Load() {
		select {
		case <-rl.cleanupDone:
		case <-time.After(5 * time.Second):
			fmt.Println("Warning: log cleanup goroutine did not stop in time")
		}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.currentFile == nil {
		return nil
	}
	err := rl.currentFile.Close()
	rl.currentFile = nil
	return err
}

// multiHandler fans each record out to several handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
