package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestComponent(t *testing.T) {
	t.Setenv("GO_ENV", "")
	var buf bytes.Buffer
	l := Component(New(&buf, "debug"), "voice")
	l.Info("hello")

	out := buf.String()
	if !strings.Contains(out, "component=voice") {
		t.Errorf("expected component attr in %q", out)
	}
}

func TestOrFallsBackToGlobal(t *testing.T) {
	if Or(nil) == nil {
		t.Fatal("expected global logger")
	}
}
