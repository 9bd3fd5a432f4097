package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bimmerbailey/triage/internal/config"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// ColorMode determines when to use colored output.
type ColorMode int

const (
	ColorAuto   ColorMode = iota // Auto-detect based on TTY
	ColorAlways                  // Always use colors
	ColorNever                   // Never use colors
)

// ParseColorMode converts "auto", "always" or "never". Anything else is
// an error.
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	}
	return ColorAuto, fmt.Errorf("invalid color mode %q (want auto, always or never)", s)
}

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// shouldColorize determines if output should be colorized based on mode and
// TTY detection. NO_COLOR disables auto-detected color.
func shouldColorize(mode ColorMode, w io.Writer) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isTerminal(f)
	}
	return false
}

// colorizeLevel adds color to a level label based on severity.
func colorizeLevel(level config.LogLevel, text string) string {
	switch level {
	case config.LevelTrace, config.LevelDebug:
		return colorGray + text + colorReset
	case config.LevelWarn:
		return colorYellow + text + colorReset
	case config.LevelError:
		return colorRed + text + colorReset
	case config.LevelFatal:
		return colorBold + colorRed + text + colorReset
	case config.LevelSummary:
		return colorCyan + text + colorReset
	default:
		return text
	}
}

// ColorizeLine applies color to an entire log line based on its level.
// Continuation lines are dimmed.
func ColorizeLine(level config.LogLevel, line string) string {
	switch level {
	case config.LevelNone:
		return colorGray + line + colorReset
	case config.LevelInfo:
		return line
	default:
		return colorizeLevel(level, line)
	}
}

// FormatEntry formats a single log entry with optional coloring. Entries
// without raw text, such as slimmer summaries, are rendered from their
// fields.
func FormatEntry(entry config.LogEntry, colorize bool) string {
	line := entry.Raw
	if line == "" {
		line = entryLine(entry)
	}
	if colorize {
		return ColorizeLine(entry.Level, line)
	}
	return line
}

func entryLine(e config.LogEntry) string {
	if e.IsContinuation() {
		return e.Message
	}
	if e.Timestamp == "" {
		return e.Level.String() + " " + e.Message
	}
	return e.Timestamp + " " + e.Level.String() + " " + e.Message
}

// confidenceColor picks green, yellow or red for a confidence in [0,1].
func confidenceColor(c float64) string {
	switch {
	case c >= 0.7:
		return colorGreen
	case c >= 0.4:
		return colorYellow
	default:
		return colorRed
	}
}

// severityColor colors an analytics severity label.
func severityColor(severity string) string {
	switch severity {
	case "critical":
		return colorBold + colorRed
	case "high":
		return colorRed
	case "medium":
		return colorYellow
	default:
		return colorGray
	}
}
