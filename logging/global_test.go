package logging

import (
	"log/slog"
	"testing"

	"github.com/giygas/ddi-engine/config"
)

func TestConsoleLevel(t *testing.T) {
	tests := []struct {
		env      config.Environment
		level    string
		verbose  bool
		expected slog.Level
	}{
		{config.EnvDevelopment, "", false, slog.LevelInfo},
		{config.EnvDevelopment, "warning", false, slog.LevelWarn},
		{config.EnvDevelopment, "bogus", false, slog.LevelInfo},
		{config.EnvStaging, "", false, slog.LevelWarn},
		{config.EnvProduction, "", false, slog.LevelWarn},
		{config.EnvProduction, "debug", false, slog.LevelDebug},
		{config.EnvProduction, "error", false, slog.LevelError},
		// LOG_LEVEL never makes tests noisy
		{config.EnvTest, "debug", false, slog.LevelError},
		{config.EnvTest, "", true, slog.LevelInfo},
	}

	for _, tt := range tests {
		got := GetConsoleLogLevel(tt.env, tt.level, tt.verbose)
		if got != tt.expected {
			t.Errorf("GetConsoleLogLevel(%s, %q, %v) = %v, want %v", tt.env, tt.level, tt.verbose, got, tt.expected)
		}
	}

	if GetFileLogLevel() != slog.LevelDebug {
		t.Error("The file handler should keep debug records")
	}
}

func TestHelpersBeforeInit(t *testing.T) {
	mu.Lock()
	prev := DefaultLoggingService
	DefaultLoggingService = nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		DefaultLoggingService = prev
		mu.Unlock()
	})

	// Falls back to stderr instead of panicking
	Debug("resolver warmed", "drugs", 3)
	Info("catalog loaded", "drugs", 3)
	Warn("curated file missing")
	Error("model unavailable", "error", "boom")

	if err := Close(); err != nil {
		t.Errorf("Close without a logger: %v", err)
	}
}
