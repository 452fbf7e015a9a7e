package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
)

func TestNew_JSONFormat(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}

	logger := New(cfg, "1.0.0")

	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwmc.log")
	logger := New(config.LoggingConfig{Level: "info", Output: "file", File: path}, "1.0.0")
	logger.Info("hello")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestNew_FileOutputFallsBack(t *testing.T) {
	logger := New(config.LoggingConfig{Output: "file", File: filepath.Join(t.TempDir(), "missing", "x.log")}, "1.0.0")
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil for fallback writer", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{name: "debug level", input: "debug", expected: slog.LevelDebug},
		{name: "info level", input: "info", expected: slog.LevelInfo},
		{name: "warn level", input: "warn", expected: slog.LevelWarn},
		{name: "warning level", input: "warning", expected: slog.LevelWarn},
		{name: "error level", input: "error", expected: slog.LevelError},
		{name: "syslog debug priority", input: "7", expected: slog.LevelDebug},
		{name: "syslog notice priority", input: "5", expected: slog.LevelInfo},
		{name: "syslog critical priority", input: "2", expected: slog.LevelError},
		{name: "unknown defaults to info", input: "unknown", expected: slog.LevelInfo},
		{name: "empty defaults to info", input: "", expected: slog.LevelInfo},
		{name: "case insensitive", input: "DEBUG", expected: slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info"}, "1.0.0", &buf)
	child := logger.With("antenna", 24)

	if child == logger {
		t.Error("expected child logger to be different from parent")
	}

	child.Info("polling")
	if !strings.Contains(buf.String(), `"antenna":24`) {
		t.Errorf("expected antenna attribute in output, got %s", buf.String())
	}
}

func TestLogger_OutputContainsDefaultFields(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "v0.3.1", &buf)
	logger.Info("test message", "key", "value")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	if logEntry["service"] != "hwmc" {
		t.Errorf("expected service='hwmc', got %v", logEntry["service"])
	}
	if logEntry["version"] != "v0.3.1" {
		t.Errorf("expected version='v0.3.1', got %v", logEntry["version"])
	}
	if logEntry["msg"] != "test message" {
		t.Errorf("expected msg='test message', got %v", logEntry["msg"])
	}
	if logEntry["key"] != "value" {
		t.Errorf("expected key='value', got %v", logEntry["key"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "test", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message should be written at warn level")
	}
}

func TestDiscard(t *testing.T) {
	if Discard() == nil {
		t.Fatal("expected non-nil discard logger")
	}
}
