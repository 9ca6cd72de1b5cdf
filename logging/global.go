package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/giygas/ddi-engine/config"
)

// Options configures the global logger
type Options struct {
	Dir            string // empty logs to the console only
	Env            config.Environment
	Level          string // overrides the environment default
	Verbose        bool   // raises the quiet test default to info
	RetentionWeeks int
	MaxFileSize    int64
}

type LoggingService struct {
	Logger *slog.Logger
	file   *RotatingLogger
}

var (
	DefaultLoggingService *LoggingService
	mu                    sync.Mutex
)

// parseLogLevel maps a LOG_LEVEL value, falling back to info
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetConsoleLogLevel picks the console level. Tests stay quiet unless run
// verbose, whatever LOG_LEVEL says.
func GetConsoleLogLevel(env config.Environment, level string, verbose bool) slog.Level {
	if env == config.EnvTest {
		if verbose {
			return slog.LevelInfo
		}
		return slog.LevelError
	}
	if level != "" {
		return parseLogLevel(level)
	}
	switch env {
	case config.EnvProduction, config.EnvStaging:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// GetFileLogLevel is the level of the JSON file handler
func GetFileLogLevel() slog.Level {
	return slog.LevelDebug
}

// NewLogger builds a logger writing text to stdout and, when opts.Dir is
// set, JSON to a weekly rotating file. The returned RotatingLogger is nil
// when no file is used.
func NewLogger(opts Options) (*slog.Logger, *RotatingLogger) {
	console := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: GetConsoleLogLevel(opts.Env, opts.Level, opts.Verbose),
	})
	if opts.Dir == "" {
		return slog.New(console), nil
	}

	if opts.RetentionWeeks <= 0 {
		opts.RetentionWeeks = 4
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	file := NewRotatingLoggerWithSizeLimit(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
	if err := file.Open(); err != nil {
		logger := slog.New(console)
		logger.Error("Failed to open log file, logging to console only", "dir", opts.Dir, "error", err)
		return logger, nil
	}
	file.StartCleanup()

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: GetFileLogLevel()})
	return slog.New(&multiHandler{handlers: []slog.Handler{console, fileHandler}}), file
}

// InitLoggerWithOptions replaces the global logger, closing the previous file
func InitLoggerWithOptions(opts Options) {
	logger, file := NewLogger(opts)

	mu.Lock()
	prev := DefaultLoggingService
	DefaultLoggingService = &LoggingService{Logger: logger, file: file}
	mu.Unlock()

	slog.SetDefault(logger)
	if prev != nil && prev.file != nil {
		_ = prev.file.Close()
	}
}

// InitLogger initializes the global logger with environment defaults
func InitLogger(logDir string) {
	InitLoggerWithOptions(Options{Dir: logDir, Env: config.EnvDevelopment})
}

// Close releases the log file of the global logger
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if DefaultLoggingService == nil || DefaultLoggingService.file == nil {
		return nil
	}
	err := DefaultLoggingService.file.Close()
	DefaultLoggingService.file = nil
	return err
}

func current() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		return nil
	}
	return DefaultLoggingService.Logger
}

// fallback logs to stderr before InitLogger runs
func fallback(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	if l := current(); l != nil {
		l.Info(msg, args...)
		return
	}
	fallback(slog.LevelInfo).Info(msg, args...)
}

func Error(msg string, args ...any) {
	if l := current(); l != nil {
		l.Error(msg, args...)
		return
	}
	fallback(slog.LevelError).Error(msg, args...)
}

func Warn(msg string, args ...any) {
	if l := current(); l != nil {
		l.Warn(msg, args...)
		return
	}
	fallback(slog.LevelWarn).Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	if l := current(); l != nil {
		l.Debug(msg, args...)
		return
	}
	fallback(slog.LevelDebug).Debug(msg, args...)
}
