// Package prompt builds the analysis request sent to the model and reads
// the answer back.
//
// # Overview
//
// [Build] turns payload entries into a []llm.Message slice: a system message
// fixing the report layout and a user message with the entries rendered as
// a numbered list ([RenderEntries]). The model answers in Markdown under the
// Header* sections, which [ParseResponse] extracts with a small line-based
// state machine.
//
// # Basic usage
//
//	messages, err := prompt.Build(prompt.TypeAnalysis, prompt.BuildOptions{
//	    Entries:          p.Entries(),
//	    UnrelatedSummary: p.UnrelatedSummary,
//	})
//	if err != nil {
//	    return err
//	}
//	resp, err := provider.Chat(ctx, messages, chatOpts)
//	sections := prompt.ParseResponse(resp.Content)
//
// # Chunks
//
// When a log is split into chunks each one is sent with [TypeChunkAnalysis]
// and its 1-based position, so the model knows it is seeing part of the
// incident.
package prompt
