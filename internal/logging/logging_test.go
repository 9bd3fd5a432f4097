package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		format string
		check  func(t *testing.T, out string)
	}{
		{
			name:   "text",
			format: "text",
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "run_id=abc") {
					t.Errorf("unexpected text output: %q", out)
				}
			},
		},
		{
			name:   "json",
			format: "JSON",
			check: func(t *testing.T, out string) {
				var rec map[string]interface{}
				if err := json.Unmarshal([]byte(out), &rec); err != nil {
					t.Fatalf("invalid JSON log line %q: %v", out, err)
				}
				if rec["msg"] != "hello" || rec["run_id"] != "abc" {
					t.Errorf("unexpected record: %v", rec)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			New(&buf, tt.format, slog.LevelInfo).Info("hello", "run_id", "abc")
			tt.check(t, buf.String())
		})
	}
}

func TestNewLevelVar(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	level.Set(slog.LevelWarn)
	logger := New(&buf, "text", &level)

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn, got %q", buf.String())
	}

	level.Set(slog.LevelDebug)
	logger.Debug("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("debug should pass after lowering the level, got %q", buf.String())
	}
}
