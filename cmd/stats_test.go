package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/bimmerbailey/triage/internal/output"
)

func newStatsTestCmd(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{Use: "stats"}
	cmd.SetOut(out)
	cmd.Flags().String("since", "", "only include logs since timestamp")
	cmd.Flags().String("until", "", "only include logs until timestamp")
	cmd.Flags().Int("top", 10, "number of top messages to show")
	cmd.Flags().String("group-by", "", "also group entries by field")
	cmd.Flags().String("window", "", "time window for trend analysis")
	return cmd
}

func TestStatsBasicText(t *testing.T) {
	resetViper(t, "text")

	dir := t.TempDir()
	file := writeTempFile(t, dir, "app.log", []string{
		`{"timestamp":"2025-01-26T10:00:00Z","level":"info","message":"first"}`,
		`{"timestamp":"2025-01-26T10:00:01Z","level":"error","message":"boom"}`,
		`{"timestamp":"2025-01-26T10:00:02Z","level":"info","message":"second"}`,
		`{"timestamp":"2025-01-26T10:00:03Z","level":"error","message":"boom"}`,
		`{"timestamp":"2025-01-26T10:00:04Z","level":"warn","message":"warning"}`,
	})

	var out bytes.Buffer
	cmd := newStatsTestCmd(&out)

	if err := runStats(cmd, []string{file}); err != nil {
		t.Fatalf("runStats() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"Total lines:", "5", "40.00%", "2  boom", "Top errors:"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output, got:\n%s", want, got)
		}
	}
}

func TestStatsJSON(t *testing.T) {
	resetViper(t, "json")

	dir := t.TempDir()
	file := writeTempFile(t, dir, "app.log", []string{
		`{"timestamp":"2025-01-26T10:00:00Z","level":"info","message":"first"}`,
		`{"timestamp":"2025-01-26T10:00:01Z","level":"error","message":"error1"}`,
		`{"timestamp":"2025-01-26T10:00:02Z","level":"error","message":"error2"}`,
	})

	var out bytes.Buffer
	cmd := newStatsTestCmd(&out)

	if err := runStats(cmd, []string{file}); err != nil {
		t.Fatalf("runStats() error = %v", err)
	}

	var rep output.StatsReport
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v\noutput: %s", err, out.String())
	}

	if rep.TotalLines != 3 {
		t.Errorf("expected TotalLines=3, got %d", rep.TotalLines)
	}
	if rep.ErrorRate != 2.0/3.0 {
		t.Errorf("expected ErrorRate=0.67, got %f", rep.ErrorRate)
	}
	if len(rep.TopMessages) != 3 {
		t.Errorf("expected 3 top messages, got %d", len(rep.TopMessages))
	}
	if rep.Analytics == nil || rep.Analytics.Performance.ErrorCount != 2 {
		t.Errorf("expected analytics with 2 errors, got %+v", rep.Analytics)
	}
	if rep.FilePath != file {
		t.Errorf("FilePath = %q, want %q", rep.FilePath, file)
	}
}

func TestStatsTable(t *testing.T) {
	resetViper(t, "table")

	dir := t.TempDir()
	file := writeTempFile(t, dir, "app.log", []string{
		`{"timestamp":"2025-01-26T10:00:00Z","level":"info","message":"first"}`,
		`{"timestamp":"2025-01-26T10:00:01Z","level":"error","message":"boom"}`,
	})

	var out bytes.Buffer
	cmd := newStatsTestCmd(&out)

	if err := runStats(cmd, []string{file}); err != nil {
		t.Fatalf("runStats() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"Total lines:", "ERROR", "INFO"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output, got:\n%s", want, got)
		}
	}
}

func TestStatsTimeRangeFilter(t *testing.T) {
	resetViper(t, "json")

	dir := t.TempDir()
	file := writeTempFile(t, dir, "app.log", []string{
		`{"timestamp":"2025-01-26T10:00:00Z","level":"info","message":"first"}`,
		`{"timestamp":"2025-01-26T10:00:01Z","level":"info","message":"second"}`,
		`{"timestamp":"2025-01-26T10:00:02Z","level":"info","message":"third"}`,
		`{"timestamp":"2025-01-26T10:00:03Z","level":"info","message":"fourth"}`,
	})

	var out bytes.Buffer
	cmd := newStatsTestCmd(&out)
	if err := cmd.Flags().Set("since", "2025-01-26T10:00:01.5Z"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cmd.Flags().Set("until", "2025-01-26T10:00:03Z"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := runStats(cmd, []string{file}); err != nil {
		t.Fatalf("runStats() error = %v", err)
	}

	var rep output.StatsReport
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
	if rep.TotalLines != 2 {
		t.Errorf("expected TotalLines=2 (filtered), got %d", rep.TotalLines)
	}
	if got := rep.FirstEntry.Format("15:04:05"); got != "10:00:02" {
		t.Errorf("expected first entry at 10:00:02, got %s", got)
	}
}

func TestStatsTopN(t *testing.T) {
	resetViper(t, "json")

	dir := t.TempDir()
	file := writeTempFile(t, dir, "app.log", []string{
		`{"timestamp":"2025-01-26T10:00:00Z","level":"info","message":"unique1"}`,
		`{"timestamp":"2025-01-26T10:00:01Z","level":"info","message":"common"}`,
		`{"timestamp":"2025-01-26T10:00:02Z","level":"info","message":"unique2"}`,
		`{"timestamp":"2025-01-26T10:00:03Z","level":"info","message":"common"}`,
		`{"timestamp":"2025-01-26T10:00:04Z","level":"info","message":"unique3"}`,
	})

	var out bytes.Buffer
	cmd := newStatsTestCmd(&out)
	if err := cmd.Flags().Set("top", "2"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := runStats(cmd, []string{file}); err != nil {
		t.Fatalf("runStats() error = %v", err)
	}

	var rep output.StatsReport
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}

	if len(rep.TopMessages) != 2 {
		t.Fatalf("expected 2 top messages (top flag), got %d", len(rep.TopMessages))
	}
	if rep.TopMessages[0].Message != "common" || rep.TopMessages[0].Count != 2 {
		t.Errorf("expected first top message to be 'common' with count 2, got %s/%d",
			rep.TopMessages[0].Message, rep.TopMessages[0].Count)
	}
}

func TestStatsEmptyFile(t *testing.T) {
	tests := []struct {
		name   string
		format string
		check  func(t *testing.T, out []byte)
	}{
		{
			name:   "json",
			format: "json",
			check: func(t *testing.T, out []byte) {
				var rep output.StatsReport
				if err := json.Unmarshal(out, &rep); err != nil {
					t.Fatalf("failed to unmarshal JSON: %v", err)
				}
				if rep.TotalLines != 0 || len(rep.LevelCounts) != 0 || rep.Analytics != nil {
					t.Errorf("expected empty stats, got %+v", rep)
				}
			},
		},
		{
			name:   "text",
			format: "text",
			check: func(t *testing.T, out []byte) {
				if !strings.Contains(string(out), "No entries found.") {
					t.Errorf("unexpected output:\n%s", out)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t, tt.format)
			file := writeTempFile(t, t.TempDir(), "empty.log", []string{})

			var out bytes.Buffer
			if err := runStats(newStatsTestCmd(&out), []string{file}); err != nil {
				t.Fatalf("runStats() error = %v", err)
			}
			tt.check(t, out.Bytes())
		})
	}
}

func TestStatsGroupByAndWindow(t *testing.T) {
	resetViper(t, "json")

	dir := t.TempDir()
	file := writeTempFile(t, dir, "app.log", []string{
		`{"timestamp":"2025-01-26T10:00:00Z","level":"debug","message":"debug1"}`,
		`{"timestamp":"2025-01-26T10:00:01Z","level":"info","message":"info1"}`,
		`{"timestamp":"2025-01-26T10:00:02Z","level":"info","message":"info2"}`,
		`{"timestamp":"2025-01-26T10:01:03Z","level":"warn","message":"warn1"}`,
		`{"timestamp":"2025-01-26T10:01:04Z","level":"error","message":"error1"}`,
		`{"timestamp":"2025-01-26T10:01:05Z","level":"fatal","message":"fatal1"}`,
	})

	var out bytes.Buffer
	cmd := newStatsTestCmd(&out)
	_ = cmd.Flags().Set("group-by", "level")
	_ = cmd.Flags().Set("window", "1m")

	if err := runStats(cmd, []string{file}); err != nil {
		t.Fatalf("runStats() error = %v", err)
	}

	var rep output.StatsReport
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}

	want := map[string]int{"DEBUG": 1, "INFO": 2, "WARN": 1, "ERROR": 1, "FATAL": 1}
	for level, n := range want {
		if rep.LevelCounts[level] != n {
			t.Errorf("LevelCounts[%s] = %d, want %d", level, rep.LevelCounts[level], n)
		}
	}
	if rep.GroupBy != "level" || len(rep.Groups) != 5 || rep.Groups[0].Key != "INFO" {
		t.Errorf("unexpected groups: %+v", rep.Groups)
	}
	if len(rep.TimeWindows) != 2 {
		t.Fatalf("expected 2 time windows, got %d", len(rep.TimeWindows))
	}
	if rep.TimeWindows[1].ErrorCount != 2 {
		t.Errorf("expected 2 errors in second window, got %d", rep.TimeWindows[1].ErrorCount)
	}
}

func TestStatsInvalidFlags(t *testing.T) {
	tests := []struct {
		name  string
		flag  string
		value string
	}{
		{"group-by", "group-by", "source"},
		{"window", "window", "soon"},
		{"top", "top", "0"},
		{"since", "since", "yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t, "text")
			file := writeTempFile(t, t.TempDir(), "app.log", []string{"INFO ok"})

			var out bytes.Buffer
			cmd := newStatsTestCmd(&out)
			if err := cmd.Flags().Set(tt.flag, tt.value); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := runStats(cmd, []string{file}); err == nil {
				t.Errorf("expected error for --%s=%s", tt.flag, tt.value)
			}
		})
	}
}
