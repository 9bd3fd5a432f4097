package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bimmerbailey/triage/internal/analyzer"
	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/output"
)

var statsCmd = &cobra.Command{
	Use:   "stats [flags] <file>",
	Short: "Show log file statistics",
	Long: `Display a statistical summary of a log file without calling a model:
line counts, level distribution, time range, error rate, top messages and
the same analytics attached to every analysis report.

Examples:
  triage stats /var/log/app.log
  triage stats --format json /var/log/app.log
  triage stats --group-by category --window 5m app.log
  triage stats --since "2024-01-01" app.log`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	statsCmd.Flags().String("since", "", "only include logs since timestamp")
	statsCmd.Flags().String("until", "", "only include logs until timestamp")
	statsCmd.Flags().Int("top", 10, "number of top messages to show")
	statsCmd.Flags().String("group-by", "", "also group entries by field (level, message, category)")
	statsCmd.Flags().String("window", "", "time window for trend analysis (e.g., 5m, 1h)")

	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	sinceStr, _ := cmd.Flags().GetString("since")
	untilStr, _ := cmd.Flags().GetString("until")
	topN, _ := cmd.Flags().GetInt("top")
	groupBy, _ := cmd.Flags().GetString("group-by")
	windowStr, _ := cmd.Flags().GetString("window")

	if topN <= 0 {
		return fmt.Errorf("--top must be positive")
	}
	validGroupFields := map[string]bool{"": true, "level": true, "message": true, "category": true}
	if !validGroupFields[groupBy] {
		return fmt.Errorf("invalid --group-by value: %s (must be 'level', 'message', or 'category')", groupBy)
	}

	var window time.Duration
	if windowStr != "" {
		var err error
		window, err = config.ParseDuration(windowStr)
		if err != nil {
			return fmt.Errorf("invalid --window value: %w", err)
		}
		if window <= 0 {
			return fmt.Errorf("window duration must be positive")
		}
	}

	var opts analyzer.FilterOptions
	now := time.Now()
	var err error
	if sinceStr != "" {
		if opts.Since, err = config.ParseTimeRef(sinceStr, now); err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
	}
	if untilStr != "" {
		if opts.Until, err = config.ParseTimeRef(untilStr, now); err != nil {
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

	filePath := args[0]
	entries, _, err := readEntries(filePath, cfg.Pipeline.MaxLines, logger)
	if err != nil {
		return err
	}

	anlz := analyzer.New()
	if !opts.Since.IsZero() || !opts.Until.IsZero() {
		entries, err = anlz.Filter(entries, opts)
		if err != nil {
			return err
		}
	}

	if len(entries) == 0 {
		if writer.Format() == output.FormatText {
			fmt.Fprintln(cmd.OutOrStdout(), "No entries found.")
			return nil
		}
	}

	rep := output.StatsReport{
		Stats:    anlz.ComputeStats(entries, topN),
		FilePath: filePath,
		GroupBy:  groupBy,
	}
	if groupBy != "" {
		rep.Groups, err = anlz.GroupBy(entries, groupBy, topN)
		if err != nil {
			return err
		}
	}
	if len(entries) > 0 {
		rep.Analytics = anlz.Enhance(entries, 0)
	}
	if window > 0 {
		rep.TimeWindows = anlz.AnalyzeByWindow(entries, window)
	}

	return writer.WriteStats(rep)
}
