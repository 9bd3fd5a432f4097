package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/bimmerbailey/triage/internal/breaker"
	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] <file>",
	Short: "Find the root cause of failures in a log file",
	Long: `Run the full pipeline on a log file: decode, parse, filter by severity,
slim repetitive entries and send the result to the configured model. Large
inputs are split into chunks and the answers merged into one report.

Examples:
  triage analyze /var/log/app.log
  triage analyze --level error --context "deploy at 10:00" app.log
  triage analyze --provider ollama --model llama3.2 --mode aggressive app.log
  triage analyze --format json --window 5m app.log`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	addAnalyzeFlags(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func addAnalyzeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("level", "l", "", "minimum log level to analyze (trace, debug, info, warn, error, fatal)")
	cmd.Flags().String("provider", "", "model provider (openrouter, openai, ollama)")
	cmd.Flags().String("model", "", "model name override")
	cmd.Flags().String("context", "", "extra context for the model, e.g. recent deploys")
	cmd.Flags().Int("timeout", 0, "analysis timeout in seconds (60-1800)")
	cmd.Flags().String("mode", "", "slimming mode (light, moderate, aggressive)")
	cmd.Flags().String("window", "", "time window for error trends (e.g., 5m, 1h)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	levelStr, _ := cmd.Flags().GetString("level")
	provider, _ := cmd.Flags().GetString("provider")
	model, _ := cmd.Flags().GetString("model")
	userContext, _ := cmd.Flags().GetString("context")
	timeout, _ := cmd.Flags().GetInt("timeout")
	mode, _ := cmd.Flags().GetString("mode")
	windowStr, _ := cmd.Flags().GetString("window")

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

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	writer, err := newWriter(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	p := pipeline.New(cfg, breaker.NewRegistry(breaker.WithLogger(logger)), pipeline.WithLogger(logger))
	rep, err := p.Analyze(ctx, pipeline.Request{
		FilePath:       args[0],
		MinLevel:       levelStr,
		Provider:       provider,
		Model:          model,
		UserContext:    userContext,
		TimeoutSeconds: timeout,
		Mode:           mode,
		Window:         window,
	})
	if err != nil {
		return err
	}

	return writer.WriteReport(rep)
}
