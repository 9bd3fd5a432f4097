package preprocess

import (
	"github.com/bimmerbailey/triage/internal/config"
)

// Preprocessor runs optional redaction followed by slimming.
//
//	p, err := preprocess.New(
//	    preprocess.WithMode(preprocess.ModeAggressive),
//	    preprocess.WithRedaction([]string{"ipv4", "email"}),
//	)
//	res := p.Process(entries)
type Preprocessor struct {
	mode     Mode
	redact   bool
	patterns []string
	redactor *Redactor
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithMode sets the slimming mode. Default is ModeLight.
func WithMode(m Mode) Option {
	return func(p *Preprocessor) {
		p.mode = m
	}
}

// WithRedaction enables secret redaction with the named patterns, or the
// defaults when names is empty. Redaction is off unless this is given.
func WithRedaction(names []string) Option {
	return func(p *Preprocessor) {
		p.redact = true
		p.patterns = names
	}
}

// New creates a Preprocessor. It fails on an unknown redaction pattern.
func New(opts ...Option) (*Preprocessor, error) {
	p := &Preprocessor{mode: ModeLight}
	for _, opt := range opts {
		opt(p)
	}
	if p.redact {
		r, err := NewRedactor(p.patterns)
		if err != nil {
			return nil, err
		}
		p.redactor = r
	}
	return p, nil
}

// Mode returns the configured slimming mode.
func (p *Preprocessor) Mode() Mode {
	return p.mode
}

// Stats describes one preprocessing run.
type Stats struct {
	Mode          string `json:"mode"`
	InputEntries  int    `json:"input_entries"`
	OutputEntries int    `json:"output_entries"`
	RedactedCount int    `json:"redacted_count"`
}

// Result is the output of Process.
type Result struct {
	Entries []config.LogEntry
	Stats   Stats
}

// Process redacts (when enabled) and slims entries. The input slice is not
// modified.
func (p *Preprocessor) Process(entries []config.LogEntry) *Result {
	redacted, count := entries, 0
	if p.redactor != nil {
		redacted, count = p.redactor.RedactEntries(entries)
	}
	slimmed := Slim(redacted, p.mode)
	return &Result{
		Entries: slimmed,
		Stats: Stats{
			Mode:          p.mode.String(),
			InputEntries:  len(entries),
			OutputEntries: len(slimmed),
			RedactedCount: count,
		},
	}
}
