// Package analyzer computes statistics over parsed log entries without a
// model: level counts, frequencies, time windows and the analytics attached
// to every analysis report.
package analyzer

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/bimmerbailey/triage/internal/classify"
	"github.com/bimmerbailey/triage/internal/config"
)

// Stats holds aggregate statistics for a set of log entries.
type Stats struct {
	TotalLines  int            `json:"total_lines" yaml:"total_lines"`
	LevelCounts map[string]int `json:"level_counts" yaml:"level_counts"`
	FirstEntry  time.Time      `json:"first_entry,omitempty" yaml:"first_entry,omitempty"`
	LastEntry   time.Time      `json:"last_entry,omitempty" yaml:"last_entry,omitempty"`
	TopMessages []MessageCount `json:"top_messages,omitempty" yaml:"top_messages,omitempty"`
	ErrorRate   float64        `json:"error_rate" yaml:"error_rate"`
}

// MessageCount tracks a message and how often it appears.
type MessageCount struct {
	Message string `json:"message" yaml:"message"`
	Count   int    `json:"count" yaml:"count"`
}

// GroupedResult represents entries grouped by a field value.
type GroupedResult struct {
	Key     string  `json:"key" yaml:"key"`
	Count   int     `json:"count" yaml:"count"`
	Percent float64 `json:"percent" yaml:"percent"`
}

// TimeWindowStats holds statistics for a time window.
type TimeWindowStats struct {
	Start         time.Time      `json:"start" yaml:"start"`
	End           time.Time      `json:"end" yaml:"end"`
	Count         int            `json:"count" yaml:"count"`
	LevelCounts   map[string]int `json:"level_counts" yaml:"level_counts"`
	ErrorCount    int            `json:"error_count" yaml:"error_count"`
	ErrorPercent  float64        `json:"error_percent" yaml:"error_percent"`
	ChangePercent float64        `json:"change_percent" yaml:"change_percent"` // Change from previous window
}

// Analyzer performs analysis on parsed log entries.
type Analyzer struct{}

// New creates a new Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// ComputeStats calculates aggregate statistics from a set of log entries.
// Continuation lines count toward TotalLines under the NONE level.
func (a *Analyzer) ComputeStats(entries []config.LogEntry, topN int) Stats {
	stats := Stats{
		TotalLines:  len(entries),
		LevelCounts: make(map[string]int),
	}

	if len(entries) == 0 {
		return stats
	}

	messageCounts := make(map[string]int)
	errorCount := 0

	for _, e := range entries {
		stats.LevelCounts[e.Level.String()]++
		if e.Level.IsError() {
			errorCount++
		}

		if ts, ok := config.ParseTimestamp(e.Timestamp); ok {
			if stats.FirstEntry.IsZero() || ts.Before(stats.FirstEntry) {
				stats.FirstEntry = ts
			}
			if stats.LastEntry.IsZero() || ts.After(stats.LastEntry) {
				stats.LastEntry = ts
			}
		}

		if !e.IsContinuation() {
			messageCounts[e.Message]++
		}
	}

	stats.ErrorRate = float64(errorCount) / float64(stats.TotalLines)
	stats.TopMessages = topMessages(messageCounts, topN)

	return stats
}

// FilterOptions defines the criteria for filtering log entries.
type FilterOptions struct {
	Pattern    string
	MinLevel   config.LogLevel // LevelNone disables level filtering
	Since      time.Time
	Until      time.Time
	Invert     bool
	ExactLevel bool
}

// Filter returns entries matching opts. Unlike the level filter of the
// pipeline it treats every entry on its own, so continuation lines only pass
// when no level is requested. An invalid pattern is an error.
func (a *Analyzer) Filter(entries []config.LogEntry, opts FilterOptions) ([]config.LogEntry, error) {
	var re *regexp.Regexp
	if opts.Pattern != "" {
		var err error
		re, err = regexp.Compile(opts.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", opts.Pattern, err)
		}
	}

	var result []config.LogEntry
	for _, e := range entries {
		if opts.MinLevel != config.LevelNone {
			if opts.ExactLevel {
				if e.Level != opts.MinLevel {
					continue
				}
			} else if e.Level < opts.MinLevel {
				continue
			}
		}

		if !opts.Since.IsZero() || !opts.Until.IsZero() {
			if ts, ok := config.ParseTimestamp(e.Timestamp); ok {
				if !opts.Since.IsZero() && ts.Before(opts.Since) {
					continue
				}
				if !opts.Until.IsZero() && ts.After(opts.Until) {
					continue
				}
			}
		}

		if re != nil {
			text := e.Raw
			if text == "" {
				text = e.Message
			}
			matched := re.MatchString(text)
			if opts.Invert {
				matched = !matched
			}
			if !matched {
				continue
			}
		}

		result = append(result, e)
	}

	return result, nil
}

// topMessages extracts the N most frequent messages.
func topMessages(counts map[string]int, n int) []MessageCount {
	msgs := make([]MessageCount, 0, len(counts))
	for msg, count := range counts {
		msgs = append(msgs, MessageCount{Message: msg, Count: count})
	}

	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Count != msgs[j].Count {
			return msgs[i].Count > msgs[j].Count
		}
		return msgs[i].Message < msgs[j].Message
	})

	if len(msgs) > n {
		msgs = msgs[:n]
	}

	return msgs
}

// GroupBy groups entries by a specific field and returns the top N groups.
// Supported fields: "level", "message", "category".
func (a *Analyzer) GroupBy(entries []config.LogEntry, field string, topN int) ([]GroupedResult, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	groups := make(map[string]int)

	for _, e := range entries {
		var key string
		switch field {
		case "level":
			key = e.Level.String()
		case "message":
			key = e.Message
		case "category":
			key = classify.Classify(e.Message).Label()
		default:
			return nil, fmt.Errorf("unsupported group-by field: %s (must be 'level', 'message', or 'category')", field)
		}

		groups[key]++
	}

	result := make([]GroupedResult, 0, len(groups))
	total := len(entries)
	for key, count := range groups {
		result = append(result, GroupedResult{
			Key:     key,
			Count:   count,
			Percent: float64(count) * 100 / float64(total),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Key < result[j].Key
	})

	if len(result) > topN {
		result = result[:topN]
	}

	return result, nil
}

// AnalyzeByWindow splits entries into time windows and calculates statistics.
// Entries without a parseable timestamp are skipped.
func (a *Analyzer) AnalyzeByWindow(entries []config.LogEntry, window time.Duration) []TimeWindowStats {
	if len(entries) == 0 || window <= 0 {
		return nil
	}

	type stamped struct {
		ts    time.Time
		level config.LogLevel
	}
	var points []stamped
	var minTime, maxTime time.Time
	for _, e := range entries {
		ts, ok := config.ParseTimestamp(e.Timestamp)
		if !ok {
			continue
		}
		points = append(points, stamped{ts: ts, level: e.Level})
		if minTime.IsZero() || ts.Before(minTime) {
			minTime = ts
		}
		if maxTime.IsZero() || ts.After(maxTime) {
			maxTime = ts
		}
	}

	if len(points) == 0 {
		return nil
	}

	// Align to window boundaries
	windowStart := minTime.Truncate(window)
	var windows []TimeWindowStats

	for current := windowStart; !current.After(maxTime); current = current.Add(window) {
		windows = append(windows, TimeWindowStats{
			Start:       current,
			End:         current.Add(window),
			LevelCounts: make(map[string]int),
		})
	}

	for _, p := range points {
		idx := int(p.ts.Sub(windowStart) / window)
		if idx < 0 || idx >= len(windows) {
			continue
		}
		windows[idx].Count++
		windows[idx].LevelCounts[p.level.String()]++
		if p.level.IsError() {
			windows[idx].ErrorCount++
		}
	}

	for i := range windows {
		if windows[i].Count > 0 {
			windows[i].ErrorPercent = float64(windows[i].ErrorCount) * 100 / float64(windows[i].Count)
		}
		if i > 0 && windows[i-1].Count > 0 {
			windows[i].ChangePercent = float64(windows[i].Count-windows[i-1].Count) * 100 / float64(windows[i-1].Count)
		}
	}

	return windows
}
