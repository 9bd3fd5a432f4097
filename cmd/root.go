package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/decode"
	"github.com/bimmerbailey/triage/internal/logging"
	"github.com/bimmerbailey/triage/internal/output"
	"github.com/bimmerbailey/triage/internal/parser"
)

var cfgFile string

// logLevel backs every logger built by newLogger so a config reload can
// change verbosity in place.
var logLevel slog.LevelVar

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Turn noisy log files into a root-cause analysis",
	Long: `Triage reads a log file, keeps what matters, and asks a language model
what went wrong. It decodes any common text encoding, filters by severity,
slims repetitive noise and returns a structured report with the root cause,
the sequence of events and concrete recommendations.

Examples:
  triage analyze --level error /var/log/app.log
  triage analyze --provider ollama --model llama3.2 app.log
  triage filter --level warn --pattern "timeout" /var/log/*.log
  triage stats --window 5m /var/log/app.log
  triage serve --addr :8080`,
	SilenceUsage: true,
}

// Execute is called by main.main(). It runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.triage.yaml)")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "output format (text, json, yaml, table)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto, always, never)")
	rootCmd.PersistentFlags().String("log-level", "info", "diagnostic log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "diagnostic log format (text, json)")

	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("color", rootCmd.PersistentFlags().Lookup("color"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error finding home directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".triage")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TRIAGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())
	viper.SetDefault("color", "auto")

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// loadConfig decodes the current viper settings.
func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

// newLogger builds the diagnostic logger on w. --verbose forces debug.
func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	applyLogLevel(cfg)
	return logging.New(w, cfg.Log.Format, &logLevel)
}

func applyLogLevel(cfg config.Config) {
	level := logging.ParseLevel(cfg.Log.Level)
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logLevel.Set(level)
}

// newWriter returns the output writer for the configured format and color.
func newWriter(cmd *cobra.Command) (*output.Writer, error) {
	mode, err := output.ParseColorMode(viper.GetString("color"))
	if err != nil {
		return nil, err
	}
	return output.New(cmd.OutOrStdout(), output.ParseFormat(viper.GetString("format")), output.WithColor(mode)), nil
}

// readEntries decodes and parses one file without any filtering.
func readEntries(path string, maxLines int, logger *slog.Logger) ([]config.LogEntry, *decode.Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	res, err := decode.New(maxLines, logger).DecodeReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return parser.New().ParseLines(res.Lines), res, nil
}

// commandContext returns the command's context, or Background when the
// command was invoked directly rather than through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
