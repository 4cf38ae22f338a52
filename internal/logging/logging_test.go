package logging

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"  warn  ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewReturnsLogger(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	if New() == nil {
		t.Fatal("expected logger, got nil")
	}
}

func TestComponentNilFallsBackToDefault(t *testing.T) {
	if Component(nil, "scheduler") == nil {
		t.Fatal("expected logger, got nil")
	}
}
