package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are tried in order by ParseTimestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05,999",
	"2006-01-02T15:04:05,999",
	"02/Jan/2006:15:04:05 -0700",
	"Jan _2 15:04:05",
	"Jan 02 15:04:05",
}

// ParseTimestamp interprets a timestamp string extracted by the parser.
// Syslog stamps carry no year and resolve to year zero, which still orders
// correctly within one file.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TimeKeys returns a sortable instant per entry. Entries without a parseable
// timestamp inherit the key of the closest preceding entry that has one, so
// continuation lines and unstamped lines stay next to their neighbours.
func TimeKeys(entries []LogEntry) []time.Time {
	keys := make([]time.Time, len(entries))
	var last time.Time
	for i, e := range entries {
		if t, ok := ParseTimestamp(e.Timestamp); ok {
			last = t
		}
		keys[i] = last
	}
	return keys
}

// ParseTimeRef parses an absolute timestamp or a relative duration.
// Relative values are subtracted from now (e.g. "1h", "30m", "1d2h").
func ParseTimeRef(s string, now time.Time) (time.Time, error) {
	input := strings.TrimSpace(s)
	if input == "" {
		return time.Time{}, fmt.Errorf("time reference is empty")
	}
	if t, err := time.Parse("2006-01-02", input); err == nil {
		return t, nil
	}
	if t, ok := ParseTimestamp(input); ok {
		return t, nil
	}

	d, err := parseRelativeDuration(input)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-d), nil
}

// ParseDuration parses a duration string supporting standard Go durations and extended units (d for days).
// Bare integers are read as seconds.
// Examples: "90", "5m", "1h", "1h30m", "2d"
func ParseDuration(s string) (time.Duration, error) {
	input := strings.TrimSpace(s)
	if input == "" {
		return 0, fmt.Errorf("duration is empty")
	}
	if secs, err := strconv.Atoi(input); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return parseRelativeDuration(input)
}

var relativeDurationRe = regexp.MustCompile(`(\d+)([dhms])`)

func parseRelativeDuration(input string) (time.Duration, error) {
	if d, err := time.ParseDuration(input); err == nil {
		return d, nil
	}

	matches := relativeDurationRe.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("invalid duration: %s", input)
	}

	totalLen := 0
	total := time.Duration(0)

	for _, match := range matches {
		totalLen += match[1] - match[0]
		value, err := strconv.ParseInt(input[match[2]:match[3]], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", input)
		}

		switch input[match[4]:match[5]] {
		case "d":
			total += time.Hour * 24 * time.Duration(value)
		case "h":
			total += time.Hour * time.Duration(value)
		case "m":
			total += time.Minute * time.Duration(value)
		case "s":
			total += time.Second * time.Duration(value)
		}
	}

	if totalLen != len(input) {
		return 0, fmt.Errorf("invalid duration: %s", input)
	}

	return total, nil
}
