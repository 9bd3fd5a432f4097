// Package parser turns decoded log lines into structured entries.
//
// Each line is stripped of ANSI color codes, then searched for a timestamp
// and a level token. Whatever remains after removing both (and a single
// leading thread or logger tag) becomes the message. Lines with no
// recognizable level are continuation lines.
package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/bimmerbailey/triage/internal/config"
)

// Format represents a detected log format.
type Format string

const (
	FormatJSON    Format = "json"
	FormatSyslog  Format = "syslog"
	FormatApache  Format = "apache"
	FormatGeneric Format = "generic"
)

const months = `(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)`

var (
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

	isoTimestamp    = regexp.MustCompile(`\[(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?)\]|(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?)`)
	apacheTimestamp = regexp.MustCompile(`\[(\d{2}/` + months + `/\d{4}:\d{2}:\d{2}:\d{2} [+-]\d{4})\]`)
	syslogTimestamp = regexp.MustCompile(`^\s*(` + months + `\s+\d{1,2} \d{2}:\d{2}:\d{2})`)

	numericLevel  = regexp.MustCompile(`(?i)\blevel\s*[:=]\s*([0-5])\b`)
	severityLevel = regexp.MustCompile(`(?i)\bseverity\s*[:=]\s*(high|medium|low)\b`)
	leadingLevel  = regexp.MustCompile(`(?i)^\s*(TRACE|TRC|DEBUG|DBG|INFORMATION|INFO|INF|WARNING|WARN|WRN|ERROR|ERR|FATAL|CRITICAL|CRIT)\s*:\s+`)
	bracketLevel  = regexp.MustCompile(`(?i)[\[(]\s*(TRACE|TRC|DEBUG|DBG|INFORMATION|INFO|INF|WARNING|WARN|WRN|ERROR|ERR|FATAL|CRITICAL|CRIT)\s*[\])]`)
	// Bare tokens must be upper case so prose like "an error occurred" is
	// not mistaken for a level.
	bareLevel = regexp.MustCompile(`\b(TRACE|DEBUG|INFO|WARNING|WARN|ERROR|FATAL|CRITICAL):?\s`)

	leadingTag = regexp.MustCompile(`^[\[(][^\])]*[\])]`)

	syslogLine = regexp.MustCompile(`^` + months + `\s+\d{1,2} \d{2}:\d{2}:\d{2} \S+ [^:\s]+:`)
	apacheLine = regexp.MustCompile(`^\S+ \S+ \S+ \[[^\]]+\] "`)
)

// Parser converts lines into log entries. The zero value is ready to use;
// all patterns are compiled once at package init.
type Parser struct{}

// New creates a new Parser.
func New() *Parser {
	return &Parser{}
}

// ParseLines parses decoded lines, skipping blank ones. Line numbers are
// 1-based positions in the input.
func (p *Parser) ParseLines(lines []string) []config.LogEntry {
	entries := make([]config.LogEntry, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, p.ParseLine(line, i+1))
	}
	return entries
}

// ParseLine parses a single line. A line without a recognizable level is
// returned with config.LevelNone.
func (p *Parser) ParseLine(line string, lineNum int) config.LogEntry {
	entry := config.LogEntry{
		Raw:  line,
		Line: lineNum,
	}

	clean := ansiPattern.ReplaceAllString(line, "")

	if p.tryParseJSON(clean, &entry) {
		return entry
	}

	rest := clean
	stripped := false
	if ts, remaining, ok := extractTimestamp(clean); ok {
		entry.Timestamp = ts
		rest = remaining
		stripped = true
	}

	level, remaining, ok := extractLevel(rest)
	if ok {
		entry.Level = level
		rest = remaining
		stripped = true
	}

	if !stripped {
		// Continuation lines keep their indentation.
		entry.Message = strings.TrimRight(clean, " \t")
		return entry
	}

	entry.Message = cleanMessage(rest)
	return entry
}

// tryParseJSON parses a single-line JSON object log record.
func (p *Parser) tryParseJSON(line string, entry *config.LogEntry) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 2 || trimmed[0] != '{' {
		return false
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &data); err != nil {
		return false
	}

	for _, key := range []string{"msg", "message", "text"} {
		if v, ok := data[key].(string); ok {
			entry.Message = v
			break
		}
	}

	entry.Level = config.LevelInfo
	for _, key := range []string{"level", "severity", "lvl"} {
		switch v := data[key].(type) {
		case string:
			if lvl := config.ParseLevel(v); lvl != config.LevelNone {
				entry.Level = lvl
			} else if lvl := severityWord(v); lvl != config.LevelNone {
				entry.Level = lvl
			}
		case float64:
			entry.Level = numericJSONLevel(int(v))
		default:
			continue
		}
		break
	}

	for _, key := range []string{"time", "timestamp", "ts", "@timestamp"} {
		if v, ok := data[key].(string); ok {
			entry.Timestamp = v
			break
		}
	}

	if entry.Message == "" {
		entry.Message = trimmed
	}
	return true
}

// numericJSONLevel maps pino/bunyan style numeric levels; small values are
// read with the 0..5 scale used by "Level: N" text logs.
func numericJSONLevel(n int) config.LogLevel {
	switch {
	case n >= 60:
		return config.LevelFatal
	case n >= 50:
		return config.LevelError
	case n >= 40:
		return config.LevelWarn
	case n >= 30:
		return config.LevelInfo
	case n >= 20:
		return config.LevelDebug
	case n >= 10:
		return config.LevelTrace
	}
	return numericTextLevel(n)
}

func numericTextLevel(n int) config.LogLevel {
	switch n {
	case 0:
		return config.LevelTrace
	case 1:
		return config.LevelDebug
	case 2:
		return config.LevelInfo
	case 3:
		return config.LevelWarn
	case 4:
		return config.LevelError
	case 5:
		return config.LevelFatal
	}
	return config.LevelNone
}

func severityWord(s string) config.LogLevel {
	switch strings.ToLower(s) {
	case "high":
		return config.LevelError
	case "medium":
		return config.LevelWarn
	case "low":
		return config.LevelInfo
	}
	return config.LevelNone
}

// extractTimestamp finds the first timestamp, returning it without
// surrounding brackets along with the line minus the matched text.
func extractTimestamp(line string) (string, string, bool) {
	if loc := isoTimestamp.FindStringSubmatchIndex(line); loc != nil {
		ts := submatch(line, loc, 1)
		if ts == "" {
			ts = submatch(line, loc, 2)
		}
		return ts, line[:loc[0]] + line[loc[1]:], true
	}
	if loc := apacheTimestamp.FindStringSubmatchIndex(line); loc != nil {
		return submatch(line, loc, 1), line[:loc[0]] + line[loc[1]:], true
	}
	if loc := syslogTimestamp.FindStringSubmatchIndex(line); loc != nil {
		return submatch(line, loc, 1), line[:loc[2]] + line[loc[3]:], true
	}
	return "", line, false
}

// extractLevel applies the level rules from most to least specific. The
// returned text has the matched level decoration removed.
func extractLevel(text string) (config.LogLevel, string, bool) {
	if loc := numericLevel.FindStringSubmatchIndex(text); loc != nil {
		n, _ := strconv.Atoi(submatch(text, loc, 1))
		return numericTextLevel(n), cut(text, loc[0], loc[1]), true
	}
	if loc := severityLevel.FindStringSubmatchIndex(text); loc != nil {
		return severityWord(submatch(text, loc, 1)), cut(text, loc[0], loc[1]), true
	}
	if loc := leadingLevel.FindStringSubmatchIndex(text); loc != nil {
		return config.ParseLevel(submatch(text, loc, 1)), cut(text, loc[0], loc[1]), true
	}
	if loc := bracketLevel.FindStringSubmatchIndex(text); loc != nil {
		return config.ParseLevel(submatch(text, loc, 1)), cut(text, loc[0], loc[1]), true
	}
	if loc := bareLevel.FindStringSubmatchIndex(text); loc != nil {
		// Keep the trailing whitespace so neighbouring words stay apart.
		end := loc[1] - 1
		return config.ParseLevel(submatch(text, loc, 1)), cut(text, loc[0], end), true
	}
	return config.LevelNone, text, false
}

// cleanMessage trims separators left behind by removed fields and drops a
// single leading [thread] or (logger) tag.
func cleanMessage(s string) string {
	s = trimSeparators(s)
	if loc := leadingTag.FindStringIndex(s); loc != nil {
		s = trimSeparators(s[loc[1]:])
	}
	return strings.TrimSpace(s)
}

func trimSeparators(s string) string {
	return strings.TrimLeft(strings.TrimSpace(s), "-:| \t")
}

func submatch(s string, loc []int, group int) string {
	if loc[2*group] < 0 {
		return ""
	}
	return s[loc[2*group]:loc[2*group+1]]
}

func cut(s string, start, end int) string {
	return s[:start] + s[end:]
}

// DetectFormat classifies a line by its overall shape.
func DetectFormat(line string) Format {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return FormatJSON
	}
	if syslogLine.MatchString(trimmed) {
		return FormatSyslog
	}
	if apacheLine.MatchString(trimmed) {
		return FormatApache
	}
	return FormatGeneric
}
