package analyzer

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bimmerbailey/triage/internal/config"
)

func entry(line int, ts string, level config.LogLevel, msg string) config.LogEntry {
	return config.LogEntry{Line: line, Timestamp: ts, Level: level, Message: msg, Raw: ts + " " + level.String() + " " + msg}
}

var sample = []config.LogEntry{
	entry(1, "2024-01-20T10:00:00Z", config.LevelInfo, "service started"),
	entry(2, "2024-01-20T10:00:30Z", config.LevelError, "Database connection failed"),
	entry(3, "", config.LevelNone, "    at db.Connect(pool.go:88)"),
	entry(4, "2024-01-20T10:01:10Z", config.LevelWarn, "retrying in 5s"),
	entry(5, "2024-01-20T10:02:00Z", config.LevelError, "Database connection failed"),
	entry(6, "2024-01-20T10:02:05Z", config.LevelFatal, "giving up"),
}

func TestComputeStats(t *testing.T) {
	stats := New().ComputeStats(sample, 2)

	if stats.TotalLines != 6 {
		t.Errorf("TotalLines = %d, want 6", stats.TotalLines)
	}
	wantLevels := map[string]int{"INFO": 1, "ERROR": 2, "NONE": 1, "WARN": 1, "FATAL": 1}
	for level, want := range wantLevels {
		if got := stats.LevelCounts[level]; got != want {
			t.Errorf("LevelCounts[%s] = %d, want %d", level, got, want)
		}
	}
	if stats.ErrorRate != 0.5 {
		t.Errorf("ErrorRate = %v, want 0.5", stats.ErrorRate)
	}
	if !stats.FirstEntry.Equal(time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("FirstEntry = %v", stats.FirstEntry)
	}
	if !stats.LastEntry.Equal(time.Date(2024, 1, 20, 10, 2, 5, 0, time.UTC)) {
		t.Errorf("LastEntry = %v", stats.LastEntry)
	}
	if len(stats.TopMessages) != 2 || stats.TopMessages[0].Message != "Database connection failed" || stats.TopMessages[0].Count != 2 {
		t.Errorf("TopMessages = %+v", stats.TopMessages)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := New().ComputeStats(nil, 5)
	if stats.TotalLines != 0 || stats.ErrorRate != 0 || stats.LevelCounts == nil {
		t.Errorf("unexpected stats for empty input: %+v", stats)
	}
}

func TestFilter(t *testing.T) {
	since, _ := config.ParseTimestamp("2024-01-20T10:01:00Z")
	tests := []struct {
		name      string
		opts      FilterOptions
		wantLines []int
	}{
		{"no criteria", FilterOptions{}, []int{1, 2, 3, 4, 5, 6}},
		{"min level", FilterOptions{MinLevel: config.LevelWarn}, []int{2, 4, 5, 6}},
		{"exact level", FilterOptions{MinLevel: config.LevelError, ExactLevel: true}, []int{2, 5}},
		{"pattern", FilterOptions{Pattern: "(?i)database"}, []int{2, 5}},
		{"inverted pattern", FilterOptions{Pattern: "Database", Invert: true}, []int{1, 3, 4, 6}},
		{"since keeps unstamped", FilterOptions{Since: since}, []int{3, 4, 5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Filter(sample, tt.opts)
			if err != nil {
				t.Fatalf("Filter() error = %v", err)
			}
			var lines []int
			for _, e := range got {
				lines = append(lines, e.Line)
			}
			if fmt.Sprint(lines) != fmt.Sprint(tt.wantLines) {
				t.Errorf("lines = %v, want %v", lines, tt.wantLines)
			}
		})
	}
}

func TestFilterInvalidPattern(t *testing.T) {
	if _, err := New().Filter(sample, FilterOptions{Pattern: "("}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestGroupBy(t *testing.T) {
	groups, err := New().GroupBy(sample, "category", 3)
	if err != nil {
		t.Fatalf("GroupBy() error = %v", err)
	}
	if groups[0].Key != "unknown" || groups[0].Count != 4 {
		t.Errorf("first group = %+v, want unknown x4", groups[0])
	}
	if _, err := New().GroupBy(sample, "source", 3); err == nil {
		t.Error("expected error for unsupported field")
	}
}

func TestAnalyzeByWindow(t *testing.T) {
	windows := New().AnalyzeByWindow(sample, time.Minute)
	if len(windows) != 3 {
		t.Fatalf("got %d windows, want 3", len(windows))
	}
	wantCounts := []int{2, 1, 2}
	wantErrors := []int{1, 0, 2}
	for i, w := range windows {
		if w.Count != wantCounts[i] || w.ErrorCount != wantErrors[i] {
			t.Errorf("window %d: count %d errors %d, want %d/%d", i, w.Count, w.ErrorCount, wantCounts[i], wantErrors[i])
		}
	}
	if windows[1].ChangePercent != -50 {
		t.Errorf("window 1 change = %v, want -50", windows[1].ChangePercent)
	}
	if New().AnalyzeByWindow([]config.LogEntry{{Message: "no time"}}, time.Minute) != nil {
		t.Error("expected nil windows without timestamps")
	}
}

func TestErrorSeverityAndTrend(t *testing.T) {
	tests := []struct {
		count    int
		severity string
		trend    string
	}{
		{1, "low", "decreasing"},
		{2, "low", "decreasing"},
		{3, "medium", "stable"},
		{5, "medium", "stable"},
		{6, "high", "increasing"},
		{10, "high", "increasing"},
		{11, "critical", "increasing"},
	}
	for _, tt := range tests {
		if got := ErrorSeverity(tt.count); got != tt.severity {
			t.Errorf("ErrorSeverity(%d) = %q, want %q", tt.count, got, tt.severity)
		}
		if got := PatternTrend(tt.count); got != tt.trend {
			t.Errorf("PatternTrend(%d) = %q, want %q", tt.count, got, tt.trend)
		}
	}
}

func TestEnhance(t *testing.T) {
	var entries []config.LogEntry
	for i := 0; i < 12; i++ {
		entries = append(entries, entry(len(entries)+1, "", config.LevelError, fmt.Sprintf("timeout calling billing api attempt %d", i)))
	}
	for i := 0; i < 3; i++ {
		entries = append(entries, entry(len(entries)+1, "", config.LevelError, "disk full"))
	}
	entries = append(entries,
		entry(len(entries)+1, "", config.LevelWarn, "slow"),
		entry(len(entries)+2, "", config.LevelInfo, strings.Repeat("payload ", 60)),
	)

	a := New().Enhance(entries, 0)

	if len(a.TopErrors) != TopErrorLimit {
		t.Errorf("TopErrors = %d, want %d", len(a.TopErrors), TopErrorLimit)
	}
	var disk *ErrorFrequency
	for i := range a.TopErrors {
		if a.TopErrors[i].Message == "disk full" {
			disk = &a.TopErrors[i]
		}
	}
	if disk == nil || disk.Count != 3 || disk.Severity != "medium" || disk.FirstLine != 13 {
		t.Errorf("disk full frequency = %+v", disk)
	}

	if len(a.TopPatterns) == 0 {
		t.Fatal("no patterns")
	}
	if p := a.TopPatterns[0]; p.Pattern != "timeout calling billing api attempt" || p.Count != 12 || p.Trend != "increasing" {
		t.Errorf("top pattern = %+v", p)
	}

	perf := a.Performance
	if perf.TotalEntries != 17 || perf.ErrorCount != 15 || perf.WarningCount != 1 {
		t.Errorf("performance = %+v", perf)
	}
	if perf.WarningRate < 5.88 || perf.WarningRate > 5.89 {
		t.Errorf("WarningRate = %v", perf.WarningRate)
	}

	if len(a.Anomalies) != 1 || a.Anomalies[0].Line != 17 {
		t.Errorf("Anomalies = %+v", a.Anomalies)
	}
	if len([]rune(a.Anomalies[0].Message)) != 200 {
		t.Errorf("anomaly message not truncated: %d", len(a.Anomalies[0].Message))
	}
	if a.TimeWindows != nil {
		t.Error("time windows computed without a window")
	}
}

func TestEnhanceTopErrorsErrorLevelOnly(t *testing.T) {
	entries := []config.LogEntry{
		entry(1, "", config.LevelError, "disk full"),
		entry(2, "", config.LevelFatal, "kernel panic"),
		entry(3, "", config.LevelFatal, "kernel panic"),
		entry(4, "", config.LevelWarn, "disk almost full"),
	}
	a := New().Enhance(entries, 0)

	if len(a.TopErrors) != 1 || a.TopErrors[0].Message != "disk full" {
		t.Errorf("TopErrors = %+v, want only the ERROR entry", a.TopErrors)
	}
	if a.Performance.ErrorCount != 3 {
		t.Errorf("ErrorCount = %d, want 3", a.Performance.ErrorCount)
	}
}

func TestEnhanceAnomalyCap(t *testing.T) {
	var entries []config.LogEntry
	for i := 0; i < 1000; i++ {
		entries = append(entries, entry(i+1, "", config.LevelInfo, "ok"))
	}
	for i := 0; i < 80; i++ {
		entries = append(entries, entry(1001+i, "", config.LevelInfo, strings.Repeat("x", 100)))
	}
	if got := len(New().Enhance(entries, 0).Anomalies); got != MaxAnomalies {
		t.Errorf("anomalies = %d, want %d", got, MaxAnomalies)
	}
}
