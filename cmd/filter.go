package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bimmerbailey/triage/internal/analyzer"
	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/filter"
	"github.com/bimmerbailey/triage/internal/output"
)

var filterCmd = &cobra.Command{
	Use:   "filter [flags] <file>...",
	Short: "Print the entries that would reach the model",
	Long: `Decode, parse and filter log files without calling a model.

--level keeps entries at or above the level together with their stack
frames, exactly as analyze does. Add --exact to match one level only.
Patterns, time ranges and context lines narrow the output further.

Examples:
  triage filter --level error /var/log/app.log
  triage filter --pattern "error|timeout" --since 1h /var/log/*.log
  triage filter --level warn --exact -C 2 app.log`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFilter,
}

func init() {
	filterCmd.Flags().StringP("pattern", "p", "", "regex pattern to search for")
	filterCmd.Flags().StringP("level", "l", "", "minimum log level (trace, debug, info, warn, error, fatal)")
	filterCmd.Flags().Bool("exact", false, "match --level exactly instead of as a minimum")
	filterCmd.Flags().String("since", "", "show logs since timestamp (RFC3339 or relative like '1h')")
	filterCmd.Flags().String("until", "", "show logs until timestamp (RFC3339 or relative like '1h')")
	filterCmd.Flags().IntP("context", "C", 0, "number of context lines around matches")
	filterCmd.Flags().BoolP("count", "c", false, "only print count of matching lines")
	filterCmd.Flags().BoolP("invert", "V", false, "invert match (show non-matching lines)")

	_ = viper.BindPFlag("filter.pattern", filterCmd.Flags().Lookup("pattern"))
	_ = viper.BindPFlag("filter.level", filterCmd.Flags().Lookup("level"))

	rootCmd.AddCommand(filterCmd)
}

type filterSpec struct {
	level config.LogLevel
	exact bool
	opts  analyzer.FilterOptions
}

func runFilter(cmd *cobra.Command, args []string) error {
	pattern, _ := cmd.Flags().GetString("pattern")
	levelStr, _ := cmd.Flags().GetString("level")
	exact, _ := cmd.Flags().GetBool("exact")
	sinceStr, _ := cmd.Flags().GetString("since")
	untilStr, _ := cmd.Flags().GetString("until")
	contextLines, _ := cmd.Flags().GetInt("context")
	countOnly, _ := cmd.Flags().GetBool("count")
	invert, _ := cmd.Flags().GetBool("invert")

	if invert && pattern == "" {
		return fmt.Errorf("--invert requires --pattern")
	}
	if exact && levelStr == "" {
		return fmt.Errorf("--exact requires --level")
	}
	if contextLines < 0 {
		return fmt.Errorf("--context must not be negative")
	}

	files, err := config.ExpandLogFiles(args)
	if err != nil {
		return err
	}

	spec := filterSpec{exact: exact}
	spec.opts.Pattern = pattern
	spec.opts.Invert = invert
	if levelStr != "" {
		spec.level = config.ParseLevel(levelStr)
		if spec.level == config.LevelNone || spec.level == config.LevelSummary {
			return fmt.Errorf("invalid level: %s", levelStr)
		}
	}

	now := time.Now()
	if sinceStr != "" {
		spec.opts.Since, err = config.ParseTimeRef(sinceStr, now)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
	}
	if untilStr != "" {
		spec.opts.Until, err = config.ParseTimeRef(untilStr, now)
		if err != nil {
			return fmt.Errorf("invalid --until value: %w", err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)
	writer, err := newWriter(cmd)
	if err != nil {
		return err
	}

	multiFile := len(files) > 1
	results := make(map[string][]config.LogEntry, len(files))

	for _, filePath := range files {
		all, matches, err := filterFile(filePath, cfg.Pipeline.MaxLines, spec, logger)
		if err != nil {
			return err
		}

		if countOnly {
			if multiFile {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:%d\n", filePath, len(matches))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n", len(matches))
			}
			continue
		}

		switch writer.Format() {
		case output.FormatJSON, output.FormatYAML:
			results[filePath] = withContext(all, matches, contextLines, nil)
		case output.FormatTable:
			if multiFile {
				fmt.Fprintf(cmd.OutOrStdout(), "==> %s <==\n", filePath)
			}
			if err := writer.WriteEntries(withContext(all, matches, contextLines, nil)); err != nil {
				return err
			}
		default:
			prefix := ""
			if multiFile {
				prefix = filePath + ":"
			}
			var emitErr error
			withContext(all, matches, contextLines, &contextSink{
				emit: func(e config.LogEntry) {
					if emitErr == nil {
						emitErr = writer.WriteLine(prefix, e)
					}
				},
				separator: func() {
					fmt.Fprintln(cmd.OutOrStdout(), "--")
				},
			})
			if emitErr != nil {
				return emitErr
			}
		}
	}

	if countOnly {
		return nil
	}
	switch writer.Format() {
	case output.FormatJSON, output.FormatYAML:
		var v interface{} = results
		if !multiFile {
			entries := results[files[0]]
			if entries == nil {
				entries = []config.LogEntry{}
			}
			v = entries
		}
		if writer.Format() == output.FormatJSON {
			return writer.WriteJSON(v)
		}
		return writer.WriteYAML(v)
	}
	return nil
}

// filterFile returns every parsed entry of the file and the subset matching
// spec. A minimum level uses the pipeline's level filter so stack frames stay
// attached to their entry.
func filterFile(path string, maxLines int, spec filterSpec, logger *slog.Logger) ([]config.LogEntry, []config.LogEntry, error) {
	all, _, err := readEntries(path, maxLines, logger)
	if err != nil {
		return nil, nil, err
	}

	candidates := all
	opts := spec.opts
	if spec.level != config.LevelNone {
		if spec.exact {
			opts.MinLevel = spec.level
			opts.ExactLevel = true
		} else {
			candidates = filter.ByLevel(all, spec.level)
		}
	}

	matches, err := analyzer.New().Filter(candidates, opts)
	if err != nil {
		return nil, nil, err
	}
	return all, matches, nil
}

// contextSink receives the entries chosen by withContext in order.
type contextSink struct {
	emit      func(config.LogEntry)
	separator func()
}

// withContext expands matches with up to n surrounding entries from all,
// never emitting an entry twice. Non-adjacent groups are separated when a
// sink is given. The selected entries are also returned.
func withContext(all, matches []config.LogEntry, n int, sink *contextSink) []config.LogEntry {
	matched := make(map[int]bool, len(matches))
	for _, m := range matches {
		matched[m.Line] = true
	}

	var out []config.LogEntry
	lastEmitted := -1
	for i, e := range all {
		if !matched[e.Line] {
			continue
		}
		start := max(i-n, lastEmitted+1)
		if sink != nil && sink.separator != nil && len(out) > 0 && n > 0 && start > lastEmitted+1 {
			sink.separator()
		}
		end := min(i+n, len(all)-1)
		for j := start; j <= end; j++ {
			out = append(out, all[j])
			if sink != nil {
				sink.emit(all[j])
			}
			lastEmitted = j
		}
	}
	return out
}
