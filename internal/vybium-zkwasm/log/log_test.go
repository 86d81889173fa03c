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
		{"trace", LevelTrace},
		{"DEBUG", LevelDebug},
		{"", LevelInfo},
		{"warning", LevelWarn},
		{"crit", LevelCrit},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestModuleGating(t *testing.T) {
	var buf bytes.Buffer
	prev := Root()
	defer SetDefault(prev)

	SetDefault(NewTerminalLogger(&buf, LevelTrace))
	DisableModule("quiet")
	defer EnableModule("quiet")

	Debug("quiet", "hidden message")
	Debug(SliceModule, "visible message", "index", 3)
	Info("quiet", "info always passes")

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Error("disabled module should not emit debug records")
	}
	if !strings.Contains(out, "visible message") {
		t.Error("enabled module should emit debug records")
	}
	if !strings.Contains(out, "info always passes") {
		t.Error("info records are not gated")
	}
}
