// Package filter drops log entries below a severity threshold while keeping
// the stack trace lines that belong to the entries it keeps.
package filter

import "github.com/bimmerbailey/triage/internal/config"

// MaxContinuationLines is how many continuation lines are kept after a
// leveled entry that passed the filter.
const MaxContinuationLines = 10

// ByLevel returns the entries at or above minLevel, in input order.
//
// A continuation line is kept only when the leveled entry it follows was
// kept, and only the first MaxContinuationLines of them. Continuation lines
// that precede the first leveled entry have no owner and are dropped.
func ByLevel(entries []config.LogEntry, minLevel config.LogLevel) []config.LogEntry {
	out := make([]config.LogEntry, 0, len(entries))
	keepingParent := false
	continuations := 0

	for _, e := range entries {
		if e.IsContinuation() {
			if keepingParent && continuations < MaxContinuationLines {
				out = append(out, e)
				continuations++
			}
			continue
		}

		keepingParent = e.Level >= minLevel
		continuations = 0
		if keepingParent {
			out = append(out, e)
		}
	}
	return out
}
