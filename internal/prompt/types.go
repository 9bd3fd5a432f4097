package prompt

import (
	"errors"
	"fmt"

	"github.com/bimmerbailey/triage/internal/payload"
)

// PromptType identifies the request a prompt is built for.
type PromptType string

const (
	// TypeAnalysis asks for a full diagnostic report over one payload.
	TypeAnalysis PromptType = "analysis"

	// TypeChunkAnalysis asks for the same report over one chunk of a larger
	// log. The model is told which chunk it is looking at so it does not
	// assume it has seen the whole incident.
	TypeChunkAnalysis PromptType = "chunk_analysis"
)

// BuildOptions holds everything rendered into the user message.
type BuildOptions struct {
	// Entries are the selected payload entries, in the order to render.
	// Required unless UnrelatedSummary is set.
	Entries []payload.Entry

	// UnrelatedSummary is the payload's one-paragraph roll-up of entries
	// that were not sent verbatim.
	UnrelatedSummary string

	// FilePath names the analyzed log. Optional.
	FilePath string

	// UserContext is free text from the operator describing the incident.
	// Optional.
	UserContext string

	// TimeRange is a human-readable span of the entries. Optional.
	TimeRange string

	// Omitted is the number of entries dropped by selection or budget.
	Omitted int

	// Chunk and TotalChunks are 1-based and only used by TypeChunkAnalysis.
	Chunk       int
	TotalChunks int
}

// ErrMissingField is returned by [Build] when a required field for the
// requested [PromptType] is absent from [BuildOptions].
var ErrMissingField = errors.New("prompt: missing required field")

// missingField wraps [ErrMissingField] with the specific field name.
func missingField(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}
