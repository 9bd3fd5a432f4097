// Package report defines the analysis output and the error taxonomy shared
// by every pipeline stage.
package report

import (
	"time"

	"github.com/bimmerbailey/triage/internal/analyzer"
)

// RootCause is the model's best explanation of the failure.
type RootCause struct {
	Category    string  `json:"category" yaml:"category"`
	Description string  `json:"description" yaml:"description"`
	File        string  `json:"file,omitempty" yaml:"file,omitempty"`
	Line        int     `json:"line,omitempty" yaml:"line,omitempty"`
	Function    string  `json:"function,omitempty" yaml:"function,omitempty"`
	Confidence  float64 `json:"confidence" yaml:"confidence"`
}

// ErrorRef points at one log entry cited by the analysis.
type ErrorRef struct {
	Line     int    `json:"line" yaml:"line"`
	Level    string `json:"level,omitempty" yaml:"level,omitempty"`
	Message  string `json:"message" yaml:"message"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Count    int    `json:"count,omitempty" yaml:"count,omitempty"`
}

// AnalysisResponse is the parsed result of one provider call.
type AnalysisResponse struct {
	Summary          string     `json:"summary,omitempty"`
	SequenceOfEvents string     `json:"sequence_of_events"`
	CriticalIssues   []string   `json:"critical_issues,omitempty"`
	RootCause        RootCause  `json:"root_cause"`
	Recommendations  []string   `json:"recommendations"`
	Confidence       float64    `json:"confidence"`
	RelatedErrors    []ErrorRef `json:"related_errors,omitempty"`
	UnrelatedErrors  []ErrorRef `json:"unrelated_errors,omitempty"`
	Model            string     `json:"model,omitempty"`
	Raw              string     `json:"-"`
}

// ContextStats records how much of the input survived each stage.
type ContextStats struct {
	Encoding        string `json:"encoding" yaml:"encoding"`
	InputLines      int    `json:"input_lines" yaml:"input_lines"`
	LinesTruncated  bool   `json:"lines_truncated" yaml:"lines_truncated"`
	ParsedEntries   int    `json:"parsed_entries" yaml:"parsed_entries"`
	FilteredEntries int    `json:"filtered_entries" yaml:"filtered_entries"`
	SlimmedEntries  int    `json:"slimmed_entries" yaml:"slimmed_entries"`
	SlimMode        string `json:"slim_mode" yaml:"slim_mode"`
	RedactedValues  int    `json:"redacted_values,omitempty" yaml:"redacted_values,omitempty"`
	EstimatedTokens int    `json:"estimated_tokens" yaml:"estimated_tokens"`
	PriorityEntries int    `json:"priority_entries" yaml:"priority_entries"`
	RelatedEntries  int    `json:"related_entries" yaml:"related_entries"`
	Unrelated       int    `json:"unrelated_entries" yaml:"unrelated_entries"`
	Truncated       bool   `json:"context_truncated" yaml:"context_truncated"`
}

// AnalysisReport is the final output of one pipeline run.
type AnalysisReport struct {
	RunID    string `json:"run_id" yaml:"run_id"`
	FilePath string `json:"file_path" yaml:"file_path"`
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	Strategy string `json:"strategy" yaml:"strategy"`
	Chunks   int    `json:"chunks" yaml:"chunks"`

	Summary          string     `json:"summary,omitempty" yaml:"summary,omitempty"`
	SequenceOfEvents string     `json:"sequence_of_events" yaml:"sequence_of_events"`
	CriticalIssues   []string   `json:"critical_issues,omitempty" yaml:"critical_issues,omitempty"`
	RootCause        RootCause  `json:"root_cause" yaml:"root_cause"`
	Recommendations  []string   `json:"recommendations" yaml:"recommendations"`
	Confidence       float64    `json:"confidence" yaml:"confidence"`
	RelatedErrors    []ErrorRef `json:"related_errors,omitempty" yaml:"related_errors,omitempty"`
	UnrelatedErrors  []ErrorRef `json:"unrelated_errors,omitempty" yaml:"unrelated_errors,omitempty"`

	Context   ContextStats        `json:"context" yaml:"context"`
	Analytics *analyzer.Analytics `json:"analytics,omitempty" yaml:"analytics,omitempty"`

	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	DurationMS int64     `json:"duration_ms" yaml:"duration_ms"`
}

// ApplyResponse copies the model-derived fields of resp onto r.
func (r *AnalysisReport) ApplyResponse(resp *AnalysisResponse) {
	r.Summary = resp.Summary
	r.SequenceOfEvents = resp.SequenceOfEvents
	r.CriticalIssues = resp.CriticalIssues
	r.RootCause = resp.RootCause
	r.Recommendations = resp.Recommendations
	r.Confidence = resp.Confidence
	r.RelatedErrors = resp.RelatedErrors
	r.UnrelatedErrors = resp.UnrelatedErrors
	if resp.Model != "" {
		r.Model = resp.Model
	}
}
