package preprocess

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnknownSecretKind is returned for a redaction pattern name that is not
// built in.
var ErrUnknownSecretKind = errors.New("unknown redaction pattern")

// SecretKind is one class of sensitive value. When the expression has a
// group named "value" only that group is replaced, so the surrounding key
// name stays readable.
type SecretKind struct {
	Name  string // config name, e.g. "api_key"
	Label string // placeholder prefix, e.g. "SECRET"
	re    *regexp.Regexp
	fold  bool // compare values case-insensitively
}

// Applied in this order: longer, more specific secrets first so that an
// email inside a URL credential is not split apart.
var secretKinds = []SecretKind{
	{Name: "private_key", Label: "PRIVATE_KEY", re: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
	{Name: "url_credentials", Label: "SECRET", re: regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://[^\s:/@]+:(?P<value>[^\s@/]+)@`)},
	{Name: "jwt", Label: "JWT", re: regexp.MustCompile(`\beyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`)},
	{Name: "bearer", Label: "TOKEN", re: regexp.MustCompile(`(?i)\bbearer\s+(?P<value>[A-Za-z0-9._~+/=-]{8,})`)},
	{Name: "api_key", Label: "SECRET", re: regexp.MustCompile(`(?i)\b(?:api[_-]?key|apikey|access[_-]?token|token|secret|password|passwd|pwd)["']?\s*[:=]\s*["']?(?P<value>[A-Za-z0-9_\-./+]{8,})`)},
	{Name: "aws_key", Label: "AWS_KEY", re: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{Name: "email", Label: "EMAIL", re: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), fold: true},
	{Name: "ipv4", Label: "IPV4", re: ipv4Regex},
	{Name: "uuid", Label: "UUID", re: uuidRegex, fold: true},
}

// DefaultSecretKinds are redacted when no pattern list is configured. UUIDs
// are left out: they are usually request ids the model needs to correlate.
var DefaultSecretKinds = []string{"private_key", "url_credentials", "jwt", "bearer", "api_key", "aws_key", "email", "ipv4"}

// SecretKindNames lists every built-in pattern name.
func SecretKindNames() []string {
	names := make([]string, len(secretKinds))
	for i, k := range secretKinds {
		names[i] = k.Name
	}
	return names
}

// LookupSecretKinds resolves pattern names, keeping the built-in order.
// An empty list selects DefaultSecretKinds.
func LookupSecretKinds(names []string) ([]SecretKind, error) {
	if len(names) == 0 {
		names = DefaultSecretKinds
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if !isSecretKind(n) {
			return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownSecretKind, n, strings.Join(SecretKindNames(), ", "))
		}
		want[n] = true
	}

	var kinds []SecretKind
	for _, k := range secretKinds {
		if want[k.Name] {
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

func isSecretKind(name string) bool {
	for _, k := range secretKinds {
		if k.Name == name {
			return true
		}
	}
	return false
}

// replace calls fn for every secret in text and substitutes its result.
func (k SecretKind) replace(text string, fn func(value string) string) (string, int) {
	group := k.re.SubexpIndex("value")
	matches := k.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, 0
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if group > 0 && m[2*group] >= 0 {
			start, end = m[2*group], m[2*group+1]
		}
		b.WriteString(text[last:start])
		value := text[start:end]
		if k.fold {
			value = strings.ToLower(value)
		}
		b.WriteString(fn(value))
		last = end
	}
	b.WriteString(text[last:])
	return b.String(), len(matches)
}
