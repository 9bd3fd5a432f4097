package prompt

import (
	"fmt"
	"strings"

	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/llm"
	"github.com/bimmerbailey/triage/internal/payload"
)

// Build constructs a []llm.Message slice ready to be sent to any llm.Provider:
// a system message followed by one user message carrying the entries.
//
// Returns ErrMissingField when there is nothing to analyze, or when
// TypeChunkAnalysis is requested without chunk numbers.
func Build(pt PromptType, opts BuildOptions) ([]llm.Message, error) {
	if len(opts.Entries) == 0 && opts.UnrelatedSummary == "" {
		return nil, missingField("Entries")
	}
	if pt == TypeChunkAnalysis && (opts.Chunk <= 0 || opts.TotalChunks <= 0) {
		return nil, missingField("Chunk")
	}

	return []llm.Message{
		{Role: "system", Content: systemPrompt(pt)},
		{Role: "user", Content: buildUserMessage(pt, opts)},
	}, nil
}

func buildUserMessage(pt PromptType, opts BuildOptions) string {
	var sb strings.Builder

	if pt == TypeChunkAnalysis {
		sb.WriteString(fmt.Sprintf("Analyze chunk %d of %d of the following log:\n\n", opts.Chunk, opts.TotalChunks))
	} else {
		sb.WriteString("Analyze the following log:\n\n")
	}

	if opts.FilePath != "" {
		sb.WriteString(fmt.Sprintf("Source file: %s\n", opts.FilePath))
	}
	if opts.TimeRange != "" {
		sb.WriteString(fmt.Sprintf("Time range: %s\n", opts.TimeRange))
	}
	if opts.UserContext != "" {
		sb.WriteString(fmt.Sprintf("Operator context: %s\n", opts.UserContext))
	}
	sb.WriteString("\n")

	if len(opts.Entries) > 0 {
		sb.WriteString(fmt.Sprintf("Log entries (%d):\n", len(opts.Entries)))
		sb.WriteString(RenderEntries(opts.Entries))
		sb.WriteString("\n")
	}

	var notes []string
	if opts.UnrelatedSummary != "" {
		notes = append(notes, opts.UnrelatedSummary)
	}
	if opts.Omitted > 0 {
		notes = append(notes, fmt.Sprintf("%d further entries were left out to fit the context.", opts.Omitted))
	}
	if len(notes) > 0 {
		sb.WriteString("\nNote: ")
		sb.WriteString(strings.Join(notes, " "))
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderEntries formats entries as a numbered list with a level glyph and
// timestamp per line.
func RenderEntries(entries []payload.Entry) string {
	var sb strings.Builder
	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("%d. %s", i+1, Glyph(e.Level)))
		if e.Timestamp != "" {
			sb.WriteString(" ")
			sb.WriteString(e.Timestamp)
		}
		if e.Level != config.LevelNone {
			sb.WriteString(" ")
			sb.WriteString(e.Level.String())
		}
		sb.WriteString(" ")
		sb.WriteString(strings.TrimSpace(e.Message))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Glyph returns the marker rendered before an entry of the given level.
func Glyph(level config.LogLevel) string {
	switch level {
	case config.LevelFatal:
		return "🛑"
	case config.LevelError:
		return "❌"
	case config.LevelWarn:
		return "⚠️"
	case config.LevelInfo:
		return "ℹ️"
	case config.LevelDebug, config.LevelTrace:
		return "🔍"
	case config.LevelSummary:
		return "Σ"
	default:
		return "↳"
	}
}
