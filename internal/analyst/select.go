package analyst

import (
	"sort"

	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/payload"
)

// DefaultMaxContextEntries caps how many entries are rendered into one
// prompt.
const DefaultMaxContextEntries = 100

// SelectEntries trims entries to at most limit. A third of the slots go to
// errors, a third to warnings and the rest to the most recent other entries;
// slots a group cannot fill pass to the next group. The selection is
// returned in timestamp order, falling back to original position.
func SelectEntries(entries []payload.Entry, limit int) []payload.Entry {
	if limit <= 0 {
		limit = DefaultMaxContextEntries
	}
	if len(entries) <= limit {
		return entries
	}

	var errs, warns, rest []payload.Entry
	for _, e := range entries {
		switch {
		case e.Level == config.LevelError || e.Level == config.LevelFatal:
			errs = append(errs, e)
		case e.Level == config.LevelWarn:
			warns = append(warns, e)
		default:
			rest = append(rest, e)
		}
	}

	// Recent first for the catch-all group.
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Position > rest[j].Position })

	quota := limit / 3
	selected := make([]payload.Entry, 0, limit)
	take := func(group []payload.Entry, n int) []payload.Entry {
		if n > len(group) {
			n = len(group)
		}
		selected = append(selected, group[:n]...)
		return group[n:]
	}

	errs = take(errs, quota)
	warns = take(warns, quota)
	rest = take(rest, limit-len(selected))
	for _, group := range [][]payload.Entry{errs, warns, rest} {
		if len(selected) >= limit {
			break
		}
		take(group, limit-len(selected))
	}

	sortByTime(selected)
	return selected
}

// sortByTime orders entries by parsed timestamp, inheriting the previous
// entry's time (by position) for lines without one.
func sortByTime(entries []payload.Entry) {
	byPos := make([]payload.Entry, len(entries))
	copy(byPos, entries)
	sort.SliceStable(byPos, func(i, j int) bool { return byPos[i].Position < byPos[j].Position })

	logs := make([]config.LogEntry, len(byPos))
	for i, e := range byPos {
		logs[i] = e.LogEntry
	}
	keys := config.TimeKeys(logs)
	keyOf := make(map[int]int64, len(byPos))
	for i, e := range byPos {
		keyOf[e.Position] = keys[i].UnixNano()
		if keys[i].IsZero() {
			keyOf[e.Position] = 0
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ki, kj := keyOf[entries[i].Position], keyOf[entries[j].Position]
		if ki != kj {
			return ki < kj
		}
		return entries[i].Position < entries[j].Position
	})
}
