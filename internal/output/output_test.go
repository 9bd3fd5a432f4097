package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bimmerbailey/triage/internal/analyzer"
	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/report"
)

func sampleEntries() []config.LogEntry {
	return []config.LogEntry{
		{Timestamp: "2024-01-15T10:00:00Z", Level: config.LevelInfo, Message: "server started", Line: 1, Raw: "2024-01-15T10:00:00Z INFO server started"},
		{Timestamp: "2024-01-15T10:00:05Z", Level: config.LevelError, Message: "connection refused", Line: 2, Raw: "2024-01-15T10:00:05Z ERROR connection refused"},
		{Level: config.LevelNone, Message: "  at db.Connect(pool.go:88)", Line: 3, Raw: "  at db.Connect(pool.go:88)"},
	}
}

func sampleReport() *report.AnalysisReport {
	return &report.AnalysisReport{
		RunID:            "run-1",
		FilePath:         "/var/log/app.log",
		Provider:         "openrouter",
		Model:            "stub-model",
		Strategy:         "single",
		Chunks:           1,
		Summary:          "Database unreachable",
		SequenceOfEvents: "Pool exhausted, then connections refused",
		RootCause: report.RootCause{
			Category:    "infrastructure",
			Description: "Database host is down",
			File:        "pool.go",
			Line:        88,
			Function:    "db.Connect",
			Confidence:  0.9,
		},
		Recommendations: []string{"Restart the database", "Add connection retries"},
		Confidence:      0.9,
		RelatedErrors: []report.ErrorRef{
			{Line: 2, Level: "ERROR", Message: "connection refused", Category: "network"},
		},
		UnrelatedErrors: []report.ErrorRef{{Category: "heartbeat", Count: 4}},
		Context: report.ContextStats{
			Encoding:        "utf-8",
			InputLines:      3,
			ParsedEntries:   3,
			FilteredEntries: 2,
			SlimmedEntries:  2,
			SlimMode:        "light",
			EstimatedTokens: 120,
			PriorityEntries: 1,
			RelatedEntries:  1,
		},
		Analytics: &analyzer.Analytics{
			TopErrors:   []analyzer.ErrorFrequency{{Message: "connection refused", Count: 1, Severity: "low", FirstLine: 2}},
			Performance: analyzer.Performance{TotalEntries: 3, ErrorCount: 1, ErrorRate: 33.3},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"yaml", FormatYAML},
		{"yml", FormatYAML},
		{"table", FormatTable},
		{"text", FormatText},
		{"", FormatText},
		{"xml", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseFormat(tt.input); got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestWriteEntries(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		check  func(t *testing.T, out string)
	}{
		{
			name:   "text writes raw lines",
			format: FormatText,
			check: func(t *testing.T, out string) {
				lines := strings.Split(strings.TrimSpace(out), "\n")
				if len(lines) != 3 {
					t.Fatalf("got %d lines, want 3", len(lines))
				}
				if lines[1] != "2024-01-15T10:00:05Z ERROR connection refused" {
					t.Errorf("line 2 = %q", lines[1])
				}
			},
		},
		{
			name:   "json round trips levels",
			format: FormatJSON,
			check: func(t *testing.T, out string) {
				var got []config.LogEntry
				if err := json.Unmarshal([]byte(out), &got); err != nil {
					t.Fatalf("invalid JSON: %v", err)
				}
				if len(got) != 3 || got[1].Level != config.LevelError || got[2].Level != config.LevelNone {
					t.Errorf("unexpected entries: %+v", got)
				}
				if !strings.Contains(out, `"level": null`) {
					t.Errorf("continuation level should encode as null:\n%s", out)
				}
			},
		},
		{
			name:   "yaml",
			format: FormatYAML,
			check: func(t *testing.T, out string) {
				var got []map[string]interface{}
				if err := yaml.Unmarshal([]byte(out), &got); err != nil {
					t.Fatalf("invalid YAML: %v", err)
				}
				if len(got) != 3 || got[1]["level"] != "ERROR" {
					t.Errorf("unexpected entries: %+v", got)
				}
			},
		},
		{
			name:   "table",
			format: FormatTable,
			check: func(t *testing.T, out string) {
				if !strings.HasPrefix(out, "LINE") {
					t.Errorf("missing header:\n%s", out)
				}
				if !strings.Contains(out, "connection refused") {
					t.Errorf("missing message:\n%s", out)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := New(&buf, tt.format, WithColor(ColorNever)).WriteEntries(sampleEntries()); err != nil {
				t.Fatalf("WriteEntries() error = %v", err)
			}
			tt.check(t, buf.String())
		})
	}
}

func TestWriteEntries_Color(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatText, WithColor(ColorAlways)).WriteEntries(sampleEntries()); err != nil {
		t.Fatalf("WriteEntries() error = %v", err)
	}
	if !strings.Contains(buf.String(), colorRed+"2024-01-15T10:00:05Z ERROR connection refused"+colorReset) {
		t.Errorf("error line not colored:\n%q", buf.String())
	}

	buf.Reset()
	if err := New(&buf, FormatText).WriteEntries(sampleEntries()); err != nil {
		t.Fatalf("WriteEntries() error = %v", err)
	}
	if strings.Contains(buf.String(), "\033[") {
		t.Errorf("buffer output should not be colored by default:\n%q", buf.String())
	}
}

func TestWriteReport_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatText, WithColor(ColorNever)).WriteReport(sampleReport()); err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Analysis of /var/log/app.log",
		"Confidence: 90%",
		"Database unreachable",
		"Root Cause [infrastructure]",
		"Location: pool.go:88 (db.Connect)",
		"1. Restart the database",
		"2. Add connection retries",
		"line 2  ERROR  connection refused",
		"heartbeat: 4",
		"Top errors:",
		"3 lines (utf-8) -> 3 parsed -> 2 filtered -> 2 slimmed (light)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("ColorNever output contains escape codes")
	}
}

func TestWriteReport_Structured(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := New(&buf, FormatJSON).WriteReport(sampleReport()); err != nil {
			t.Fatalf("WriteReport() error = %v", err)
		}
		var got report.AnalysisReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.RootCause.Function != "db.Connect" || got.Context.EstimatedTokens != 120 {
			t.Errorf("unexpected report: %+v", got)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := New(&buf, FormatYAML).WriteReport(sampleReport()); err != nil {
			t.Fatalf("WriteReport() error = %v", err)
		}
		var got map[string]interface{}
		if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid YAML: %v", err)
		}
		if got["run_id"] != "run-1" || got["strategy"] != "single" {
			t.Errorf("unexpected report: %v", got)
		}
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := New(&buf, FormatTable).WriteReport(sampleReport()); err != nil {
			t.Fatalf("WriteReport() error = %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "recommendation 2") || !strings.Contains(out, "network") {
			t.Errorf("unexpected table:\n%s", out)
		}
	})
}

func TestWriteStats(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	stats := analyzer.Stats{
		TotalLines:  4,
		LevelCounts: map[string]int{"INFO": 2, "ERROR": 1, "NONE": 1},
		FirstEntry:  base,
		LastEntry:   base.Add(time.Minute),
		TopMessages: []analyzer.MessageCount{{Message: "server started", Count: 2}},
		ErrorRate:   0.25,
	}
	windows := []analyzer.TimeWindowStats{{Start: base, End: base.Add(time.Minute), Count: 4, ErrorCount: 1, ErrorPercent: 25}}
	rep := StatsReport{
		Stats:       stats,
		FilePath:    "app.log",
		GroupBy:     "level",
		Groups:      []analyzer.GroupedResult{{Key: "INFO", Count: 2, Percent: 50}},
		TimeWindows: windows,
		Analytics:   &analyzer.Analytics{Performance: analyzer.Performance{TotalEntries: 4, ErrorCount: 1, ErrorRate: 25}},
	}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := New(&buf, FormatText, WithColor(ColorNever)).WriteStats(rep); err != nil {
			t.Fatalf("WriteStats() error = %v", err)
		}
		out := buf.String()
		for _, want := range []string{"File:", "Total lines:", "25.00%", "ERROR", "server started", "Grouped by level:", "Time windows:", "Analytics"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if strings.Index(out, "ERROR") > strings.Index(out, "INFO") {
			t.Errorf("levels should be listed most severe first:\n%s", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := New(&buf, FormatJSON).WriteStats(rep); err != nil {
			t.Fatalf("WriteStats() error = %v", err)
		}
		var got map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got["total_lines"] != float64(4) {
			t.Errorf("total_lines = %v", got["total_lines"])
		}
		if w, ok := got["time_windows"].([]interface{}); !ok || len(w) != 1 {
			t.Errorf("time_windows = %v", got["time_windows"])
		}
		if _, ok := got["analytics"].(map[string]interface{}); !ok {
			t.Errorf("analytics = %v", got["analytics"])
		}
	})

	t.Run("yaml inlines stats", func(t *testing.T) {
		var buf bytes.Buffer
		if err := New(&buf, FormatYAML).WriteStats(StatsReport{Stats: stats}); err != nil {
			t.Fatalf("WriteStats() error = %v", err)
		}
		if !strings.HasPrefix(buf.String(), "total_lines: 4") {
			t.Errorf("unexpected YAML:\n%s", buf.String())
		}
	})
}

func TestClip(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"日本語のテキストです", 6, "日本語..."},
	}

	for _, tt := range tests {
		if got := clip(tt.in, tt.n); got != tt.want {
			t.Errorf("clip(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
