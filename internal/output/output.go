// Package output renders log entries, statistics and analysis reports as
// text, JSON, YAML or tables.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/bimmerbailey/triage/internal/analyzer"
	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/report"
)

// Format represents an output format type.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

// ParseFormat converts a string to a Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "table":
		return FormatTable
	default:
		return FormatText
	}
}

// Writer handles writing formatted output.
type Writer struct {
	w        io.Writer
	format   Format
	colorize bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithColor sets when text output is colored.
func WithColor(mode ColorMode) Option {
	return func(wr *Writer) {
		wr.colorize = shouldColorize(mode, wr.w)
	}
}

// New creates a new output Writer. Color is auto-detected unless WithColor
// says otherwise.
func New(w io.Writer, format Format, opts ...Option) *Writer {
	wr := &Writer{w: w, format: format}
	wr.colorize = shouldColorize(ColorAuto, w)
	for _, opt := range opts {
		opt(wr)
	}
	return wr
}

// Format returns the configured format.
func (wr *Writer) Format() Format {
	return wr.format
}

// WriteJSON outputs any value as indented JSON.
func (wr *Writer) WriteJSON(v interface{}) error {
	enc := json.NewEncoder(wr.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteYAML outputs any value as YAML.
func (wr *Writer) WriteYAML(v interface{}) error {
	enc := yaml.NewEncoder(wr.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// WriteEntries outputs a slice of log entries in the configured format.
func (wr *Writer) WriteEntries(entries []config.LogEntry) error {
	switch wr.format {
	case FormatJSON:
		return wr.WriteJSON(entries)
	case FormatYAML:
		return wr.WriteYAML(entries)
	case FormatTable:
		return wr.writeEntryTable(entries)
	default:
		for _, e := range entries {
			if _, err := fmt.Fprintln(wr.w, FormatEntry(e, wr.colorize)); err != nil {
				return err
			}
		}
		return nil
	}
}

// WriteLine writes one entry as text after prefix, colored when enabled.
func (wr *Writer) WriteLine(prefix string, e config.LogEntry) error {
	_, err := fmt.Fprintln(wr.w, prefix+FormatEntry(e, wr.colorize))
	return err
}

func (wr *Writer) writeEntryTable(entries []config.LogEntry) error {
	tw := tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tLEVEL\tTIMESTAMP\tMESSAGE")
	fmt.Fprintln(tw, "----\t-----\t---------\t-------")

	for _, e := range entries {
		level := ""
		if !e.IsContinuation() {
			level = e.Level.String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Line, level, e.Timestamp, clip(e.Message, 80))
	}

	return tw.Flush()
}

// StatsReport bundles the model-free statistics of one input.
type StatsReport struct {
	analyzer.Stats `yaml:",inline"`
	FilePath       string                     `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	GroupBy        string                     `json:"group_by,omitempty" yaml:"group_by,omitempty"`
	Groups         []analyzer.GroupedResult   `json:"groups,omitempty" yaml:"groups,omitempty"`
	TimeWindows    []analyzer.TimeWindowStats `json:"time_windows,omitempty" yaml:"time_windows,omitempty"`
	Analytics      *analyzer.Analytics        `json:"analytics,omitempty" yaml:"analytics,omitempty"`
}

// WriteStats outputs aggregate statistics with any groups, time windows and
// analytics attached to rep.
func (wr *Writer) WriteStats(rep StatsReport) error {
	switch wr.format {
	case FormatJSON:
		return wr.WriteJSON(rep)
	case FormatYAML:
		return wr.WriteYAML(rep)
	}

	stats := rep.Stats
	tw := tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
	if rep.FilePath != "" {
		fmt.Fprintf(tw, "File:\t%s\n", rep.FilePath)
	}
	fmt.Fprintf(tw, "Total lines:\t%d\n", stats.TotalLines)
	if !stats.FirstEntry.IsZero() {
		fmt.Fprintf(tw, "Time range:\t%s - %s\n", stats.FirstEntry.Format("2006-01-02 15:04:05"), stats.LastEntry.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(tw, "Error rate:\t%.2f%%\n", stats.ErrorRate*100)
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(wr.w, "\nLevels:")
	tw = tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
	for _, level := range []config.LogLevel{config.LevelFatal, config.LevelError, config.LevelWarn, config.LevelInfo, config.LevelDebug, config.LevelTrace, config.LevelNone} {
		n := stats.LevelCounts[level.String()]
		if n == 0 {
			continue
		}
		label := level.String()
		if wr.colorize {
			label = colorizeLevel(level, label)
		}
		fmt.Fprintf(tw, "  %s\t%d\n", label, n)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(stats.TopMessages) > 0 {
		fmt.Fprintln(wr.w, "\nTop messages:")
		tw = tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
		for _, m := range stats.TopMessages {
			fmt.Fprintf(tw, "  %d\t%s\n", m.Count, clip(m.Message, 100))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(rep.Groups) > 0 {
		fmt.Fprintf(wr.w, "\nGrouped by %s:\n", rep.GroupBy)
		tw = tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
		for i, g := range rep.Groups {
			fmt.Fprintf(tw, "  %d.\t%d\t%.1f%%\t%s\n", i+1, g.Count, g.Percent, clip(g.Key, 80))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(rep.TimeWindows) > 0 {
		fmt.Fprintln(wr.w, "\nTime windows:")
		if err := wr.writeWindows(rep.TimeWindows); err != nil {
			return err
		}
	}

	if rep.Analytics != nil {
		var sb strings.Builder
		a := *rep.Analytics
		a.TimeWindows = nil
		wr.writeAnalyticsText(&sb, &a)
		if _, err := io.WriteString(wr.w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

func (wr *Writer) writeWindows(windows []analyzer.TimeWindowStats) error {
	tw := tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  START\tCOUNT\tERRORS\tERROR %\tCHANGE %")
	for _, w := range windows {
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%.1f\t%+.1f\n",
			w.Start.Format("2006-01-02 15:04:05"), w.Count, w.ErrorCount, w.ErrorPercent, w.ChangePercent)
	}
	return tw.Flush()
}

// WriteReport outputs an analysis report in the configured format.
func (wr *Writer) WriteReport(rep *report.AnalysisReport) error {
	switch wr.format {
	case FormatJSON:
		return wr.WriteJSON(rep)
	case FormatYAML:
		return wr.WriteYAML(rep)
	case FormatTable:
		return wr.writeReportTable(rep)
	default:
		return wr.writeReportText(rep)
	}
}

func (wr *Writer) heading(s string) string {
	if wr.colorize {
		return colorBold + s + colorReset
	}
	return s
}

func (wr *Writer) paint(color, s string) string {
	if wr.colorize {
		return color + s + colorReset
	}
	return s
}

func (wr *Writer) writeReportText(rep *report.AnalysisReport) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s %s\n", wr.heading("Analysis of"), rep.FilePath)
	fmt.Fprintf(&sb, "Provider: %s (%s)  Strategy: %s  Chunks: %d  Run: %s\n",
		rep.Provider, rep.Model, rep.Strategy, rep.Chunks, rep.RunID)
	fmt.Fprintf(&sb, "Confidence: %s\n",
		wr.paint(confidenceColor(rep.Confidence), fmt.Sprintf("%.0f%%", rep.Confidence*100)))

	if rep.Summary != "" {
		fmt.Fprintf(&sb, "\n%s\n%s\n", wr.heading("Summary"), rep.Summary)
	}
	if rep.SequenceOfEvents != "" {
		fmt.Fprintf(&sb, "\n%s\n%s\n", wr.heading("Sequence of Events"), rep.SequenceOfEvents)
	}
	if len(rep.CriticalIssues) > 0 {
		fmt.Fprintf(&sb, "\n%s\n", wr.heading("Critical Issues"))
		for _, issue := range rep.CriticalIssues {
			fmt.Fprintf(&sb, "  - %s\n", issue)
		}
	}

	rc := rep.RootCause
	fmt.Fprintf(&sb, "\n%s [%s]\n", wr.heading("Root Cause"), rc.Category)
	if rc.Description != "" {
		fmt.Fprintf(&sb, "%s\n", rc.Description)
	}
	if loc := location(rc); loc != "" {
		fmt.Fprintf(&sb, "Location: %s\n", loc)
	}

	fmt.Fprintf(&sb, "\n%s\n", wr.heading("Recommendations"))
	for i, r := range rep.Recommendations {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, r)
	}

	if len(rep.RelatedErrors) > 0 {
		fmt.Fprintf(&sb, "\n%s (%d)\n", wr.heading("Related Errors"), len(rep.RelatedErrors))
		for _, e := range rep.RelatedErrors {
			level := config.ParseLevel(e.Level)
			label := e.Level
			if wr.colorize {
				label = colorizeLevel(level, label)
			}
			fmt.Fprintf(&sb, "  line %d  %s  %s\n", e.Line, label, clip(e.Message, 100))
		}
	}
	if len(rep.UnrelatedErrors) > 0 {
		fmt.Fprintf(&sb, "\n%s\n", wr.heading("Other Activity"))
		for _, e := range rep.UnrelatedErrors {
			fmt.Fprintf(&sb, "  %s: %d\n", e.Category, e.Count)
		}
	}

	if a := rep.Analytics; a != nil {
		wr.writeAnalyticsText(&sb, a)
	}

	c := rep.Context
	fmt.Fprintf(&sb, "\n%s\n", wr.heading("Context"))
	fmt.Fprintf(&sb, "  %d lines (%s%s) -> %d parsed -> %d filtered -> %d slimmed (%s)\n",
		c.InputLines, c.Encoding, truncatedNote(c.LinesTruncated), c.ParsedEntries, c.FilteredEntries, c.SlimmedEntries, c.SlimMode)
	fmt.Fprintf(&sb, "  %d priority, %d related, %d summarized, ~%d tokens%s\n",
		c.PriorityEntries, c.RelatedEntries, c.Unrelated, c.EstimatedTokens, truncatedNote(c.Truncated))
	if c.RedactedValues > 0 {
		fmt.Fprintf(&sb, "  %d values redacted\n", c.RedactedValues)
	}

	_, err := io.WriteString(wr.w, sb.String())
	return err
}

func (wr *Writer) writeAnalyticsText(sb *strings.Builder, a *analyzer.Analytics) {
	p := a.Performance
	fmt.Fprintf(sb, "\n%s\n", wr.heading("Analytics"))
	fmt.Fprintf(sb, "  %d entries, %.1f%% errors, %.1f%% warnings\n", p.TotalEntries, p.ErrorRate, p.WarningRate)

	if len(a.TopErrors) > 0 {
		fmt.Fprintln(sb, "  Top errors:")
		for _, e := range a.TopErrors {
			fmt.Fprintf(sb, "    %4d  %s  %s\n", e.Count, wr.paint(severityColor(e.Severity), fmt.Sprintf("%-8s", e.Severity)), clip(e.Message, 90))
		}
	}
	if len(a.TopPatterns) > 0 {
		fmt.Fprintln(sb, "  Top patterns:")
		for _, pf := range a.TopPatterns {
			fmt.Fprintf(sb, "    %4d  %-10s  %s\n", pf.Count, pf.Trend, clip(pf.Pattern, 90))
		}
	}
	if len(a.Anomalies) > 0 {
		fmt.Fprintf(sb, "  Anomalies: %d unusually long entries\n", len(a.Anomalies))
		for _, an := range a.Anomalies {
			fmt.Fprintf(sb, "    line %d  %.1fx  %s\n", an.Line, an.Ratio, clip(an.Message, 80))
		}
	}
	if len(a.TimeWindows) > 0 {
		fmt.Fprintln(sb, "  Error trend:")
		for _, w := range a.TimeWindows {
			fmt.Fprintf(sb, "    %s  %d entries  %d errors\n", w.Start.Format("15:04:05"), w.Count, w.ErrorCount)
		}
	}
}

func (wr *Writer) writeReportTable(rep *report.AnalysisReport) error {
	tw := tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tVALUE")
	fmt.Fprintln(tw, "-----\t-----")
	fmt.Fprintf(tw, "file\t%s\n", rep.FilePath)
	fmt.Fprintf(tw, "provider\t%s\n", rep.Provider)
	fmt.Fprintf(tw, "model\t%s\n", rep.Model)
	fmt.Fprintf(tw, "strategy\t%s\n", rep.Strategy)
	fmt.Fprintf(tw, "chunks\t%d\n", rep.Chunks)
	fmt.Fprintf(tw, "confidence\t%.2f\n", rep.Confidence)
	fmt.Fprintf(tw, "root_cause\t%s\n", clip(rep.RootCause.Description, 80))
	fmt.Fprintf(tw, "category\t%s\n", rep.RootCause.Category)
	if loc := location(rep.RootCause); loc != "" {
		fmt.Fprintf(tw, "location\t%s\n", loc)
	}
	for i, r := range rep.Recommendations {
		fmt.Fprintf(tw, "recommendation %d\t%s\n", i+1, clip(r, 80))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(rep.RelatedErrors) == 0 {
		return nil
	}
	fmt.Fprintln(wr.w)
	tw = tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tLEVEL\tCATEGORY\tMESSAGE")
	fmt.Fprintln(tw, "----\t-----\t--------\t-------")
	for _, e := range rep.RelatedErrors {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Line, e.Level, e.Category, clip(e.Message, 80))
	}
	return tw.Flush()
}

func location(rc report.RootCause) string {
	loc := rc.File
	if loc != "" && rc.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, rc.Line)
	}
	if rc.Function != "" {
		if loc != "" {
			loc += " "
		}
		loc += "(" + rc.Function + ")"
	}
	return loc
}

func truncatedNote(truncated bool) string {
	if truncated {
		return ", truncated"
	}
	return ""
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
