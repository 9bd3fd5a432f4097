package analyzer

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bimmerbailey/triage/internal/config"
)

// Limits on the analytics attached to a report.
const (
	TopErrorLimit     = 10
	TopPatternLimit   = 10
	MaxAnomalies      = 50
	errorKeyRunes     = 100
	patternTokens     = 5
	anomalyFactor     = 3.0
	anomalyMessageCap = 200
)

// ErrorFrequency is one group of identical error messages.
type ErrorFrequency struct {
	Message   string `json:"message" yaml:"message"`
	Count     int    `json:"count" yaml:"count"`
	Severity  string `json:"severity" yaml:"severity"`
	FirstLine int    `json:"first_line" yaml:"first_line"`
}

// PatternFrequency is one group of messages sharing their leading tokens.
type PatternFrequency struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Count   int    `json:"count" yaml:"count"`
	Trend   string `json:"trend" yaml:"trend"`
}

// Performance summarizes how noisy the input was. Rates are percentages.
type Performance struct {
	TotalEntries int     `json:"total_entries" yaml:"total_entries"`
	ErrorCount   int     `json:"error_count" yaml:"error_count"`
	WarningCount int     `json:"warning_count" yaml:"warning_count"`
	ErrorRate    float64 `json:"error_rate" yaml:"error_rate"`
	WarningRate  float64 `json:"warning_rate" yaml:"warning_rate"`
}

// Anomaly is an entry whose message is unusually long.
type Anomaly struct {
	Line    int     `json:"line" yaml:"line"`
	Level   string  `json:"level" yaml:"level"`
	Message string  `json:"message" yaml:"message"`
	Length  int     `json:"length" yaml:"length"`
	Ratio   float64 `json:"ratio" yaml:"ratio"` // length over mean length
}

// Analytics are the model-free rollups attached to a report.
type Analytics struct {
	TopErrors   []ErrorFrequency   `json:"top_errors" yaml:"top_errors"`
	TopPatterns []PatternFrequency `json:"top_patterns" yaml:"top_patterns"`
	Performance Performance        `json:"performance" yaml:"performance"`
	Anomalies   []Anomaly          `json:"anomalies" yaml:"anomalies"`
	TimeWindows []TimeWindowStats  `json:"time_windows,omitempty" yaml:"time_windows,omitempty"`
}

// Enhance computes analytics over the unslimmed entries. A positive window
// adds per-window error trends.
func (a *Analyzer) Enhance(entries []config.LogEntry, window time.Duration) *Analytics {
	out := &Analytics{
		TopErrors:   topErrors(entries),
		TopPatterns: topPatterns(entries),
		Performance: performance(entries),
		Anomalies:   anomalies(entries),
	}
	if window > 0 {
		out.TimeWindows = a.AnalyzeByWindow(entries, window)
	}
	return out
}

// ErrorSeverity buckets an error frequency.
func ErrorSeverity(count int) string {
	switch {
	case count > 10:
		return "critical"
	case count > 5:
		return "high"
	case count > 2:
		return "medium"
	default:
		return "low"
	}
}

// PatternTrend labels a pattern frequency.
func PatternTrend(count int) string {
	switch {
	case count > 5:
		return "increasing"
	case count > 2:
		return "stable"
	default:
		return "decreasing"
	}
}

type counter struct {
	key   string
	count int
	line  int // line of the first occurrence
}

// countBy groups entries by key in first-seen order and returns the top n
// by count, earliest group first on ties.
func countBy(entries []config.LogEntry, n int, key func(config.LogEntry) (string, bool)) []*counter {
	var order []*counter
	byKey := make(map[string]*counter)
	for _, e := range entries {
		k, ok := key(e)
		if !ok {
			continue
		}
		c, seen := byKey[k]
		if !seen {
			c = &counter{key: k, line: e.Line}
			byKey[k] = c
			order = append(order, c)
		}
		c.count++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].count > order[j].count
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}

func topErrors(entries []config.LogEntry) []ErrorFrequency {
	groups := countBy(entries, TopErrorLimit, func(e config.LogEntry) (string, bool) {
		if e.Level != config.LevelError {
			return "", false
		}
		return prefixRunes(e.Message, errorKeyRunes), true
	})
	out := make([]ErrorFrequency, 0, len(groups))
	for _, g := range groups {
		out = append(out, ErrorFrequency{
			Message:   g.key,
			Count:     g.count,
			Severity:  ErrorSeverity(g.count),
			FirstLine: g.line,
		})
	}
	return out
}

func topPatterns(entries []config.LogEntry) []PatternFrequency {
	groups := countBy(entries, TopPatternLimit, func(e config.LogEntry) (string, bool) {
		fields := strings.Fields(e.Message)
		if len(fields) == 0 {
			return "", false
		}
		if len(fields) > patternTokens {
			fields = fields[:patternTokens]
		}
		return strings.Join(fields, " "), true
	})
	out := make([]PatternFrequency, 0, len(groups))
	for _, g := range groups {
		out = append(out, PatternFrequency{
			Pattern: g.key,
			Count:   g.count,
			Trend:   PatternTrend(g.count),
		})
	}
	return out
}

func performance(entries []config.LogEntry) Performance {
	p := Performance{TotalEntries: len(entries)}
	for _, e := range entries {
		switch {
		case e.Level.IsError():
			p.ErrorCount++
		case e.Level == config.LevelWarn:
			p.WarningCount++
		}
	}
	if p.TotalEntries > 0 {
		p.ErrorRate = float64(p.ErrorCount) * 100 / float64(p.TotalEntries)
		p.WarningRate = float64(p.WarningCount) * 100 / float64(p.TotalEntries)
	}
	return p
}

func anomalies(entries []config.LogEntry) []Anomaly {
	if len(entries) == 0 {
		return []Anomaly{}
	}
	total := 0
	for _, e := range entries {
		total += utf8.RuneCountInString(e.Message)
	}
	mean := float64(total) / float64(len(entries))
	out := []Anomaly{}
	if mean == 0 {
		return out
	}
	for _, e := range entries {
		n := utf8.RuneCountInString(e.Message)
		if float64(n) <= anomalyFactor*mean {
			continue
		}
		out = append(out, Anomaly{
			Line:    e.Line,
			Level:   e.Level.String(),
			Message: prefixRunes(e.Message, anomalyMessageCap),
			Length:  n,
			Ratio:   float64(n) / mean,
		})
		if len(out) == MaxAnomalies {
			break
		}
	}
	return out
}

func prefixRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
