package preprocess

import "regexp"

var (
	ipv4Regex         = regexp.MustCompile(`\b(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)(?:\.(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)){3}\b`)
	uuidRegex         = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	isoTimestampRegex = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
	pathRegex         = regexp.MustCompile(`(^|\s)/\S+`)
	numberRegex       = regexp.MustCompile(`\b\d+\b`)
)

// PatternKey canonicalizes a message by replacing variable fragments with
// placeholders, so messages that differ only in ids, addresses or counters
// share a key. The number rule runs last; earlier it would split
// timestamps, UUIDs and addresses apart.
func PatternKey(message string) string {
	key := isoTimestampRegex.ReplaceAllString(message, "[TS]")
	key = uuidRegex.ReplaceAllString(key, "[UUID]")
	key = pathRegex.ReplaceAllString(key, "${1}[PATH]")
	key = ipv4Regex.ReplaceAllString(key, "[IP]")
	key = numberRegex.ReplaceAllString(key, "[NUM]")
	return key
}
