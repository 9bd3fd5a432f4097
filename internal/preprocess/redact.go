package preprocess

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/bimmerbailey/triage/internal/config"
)

// Redactor replaces secrets with placeholders of the form [LABEL:hash].
// Equal values map to the same placeholder for the redactor's lifetime, so
// the model can still see that one address shows up in several failures.
type Redactor struct {
	kinds []SecretKind

	mu   sync.Mutex
	seen map[string]string // label + value -> placeholder
}

// NewRedactor builds a redactor for the named patterns; an empty list
// selects DefaultSecretKinds.
func NewRedactor(names []string) (*Redactor, error) {
	kinds, err := LookupSecretKinds(names)
	if err != nil {
		return nil, err
	}
	return &Redactor{kinds: kinds, seen: make(map[string]string)}, nil
}

// Redact returns text with every secret replaced and the number of
// replacements.
//
//	"refused by 10.0.0.7"  -> "refused by [IPV4:3c1e]"
//	"api_key=sk_live_1234" -> "api_key=[SECRET:9a0b]"
func (r *Redactor) Redact(text string) (string, int) {
	total := 0
	for _, k := range r.kinds {
		var n int
		text, n = k.replace(text, func(value string) string {
			return r.placeholder(k.Label, value)
		})
		total += n
	}
	return text, total
}

// RedactEntries returns redacted copies of entries and the number of
// replacements in their messages. Raw lines are redacted too but not
// counted, since they repeat the message.
func (r *Redactor) RedactEntries(entries []config.LogEntry) ([]config.LogEntry, int) {
	out := make([]config.LogEntry, len(entries))
	total := 0
	for i, e := range entries {
		var n int
		e.Message, n = r.Redact(e.Message)
		total += n
		if e.Raw != "" {
			e.Raw, _ = r.Redact(e.Raw)
		}
		out[i] = e
	}
	return out, total
}

// Distinct returns how many different values have been replaced.
func (r *Redactor) Distinct() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func (r *Redactor) placeholder(label, value string) string {
	key := label + "\x00" + value

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.seen[key]; ok {
		return p
	}
	sum := sha256.Sum256([]byte(value))
	p := "[" + label + ":" + hex.EncodeToString(sum[:2]) + "]"
	r.seen[key] = p
	return p
}
