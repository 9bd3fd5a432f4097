package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bimmerbailey/triage/internal/breaker"
	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/llm"
	"github.com/bimmerbailey/triage/internal/pipeline"
	"github.com/bimmerbailey/triage/internal/server"
	"github.com/bimmerbailey/triage/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis pipeline over HTTP",
	Long: `Start an HTTP server exposing the pipeline. All requests share one
circuit breaker per provider and one HTTP client. When store.dsn is set,
every outcome is written to Postgres. Edits to the config file are picked
up without a restart.

Endpoints:
  POST /api/v1/analyze    run an analysis
  GET  /api/v1/breakers   circuit breaker states
  GET  /api/v1/reports    recent stored outcomes
  GET  /health            liveness

Examples:
  triage serve
  triage serve --addr :9090
  triage serve --log-root /var/log/myapp
  TRIAGE_STORE_DSN=postgres://localhost/triage triage serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	serveCmd.Flags().String("log-root", "", "only analyze files under this directory")
	_ = viper.BindPFlag("server.log_root", serveCmd.Flags().Lookup("log-root"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	breakers := breaker.NewRegistry(breaker.WithLogger(logger))
	httpClient := llm.NewHTTPClient()
	newPipeline := func(c config.Config) *pipeline.Pipeline {
		return pipeline.New(c, breakers, pipeline.WithHTTPClient(httpClient), pipeline.WithLogger(logger))
	}

	var opts []server.Option
	opts = append(opts, server.WithLogger(logger), server.WithLogRoot(cfg.Server.LogRoot))
	if cfg.Server.LogRoot == "" {
		logger.Warn("no log root set, any readable file can be analyzed")
	}
	if cfg.Store.DSN != "" {
		st, err := store.New(ctx, cfg.Store.DSN, store.WithLogger(logger))
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, server.WithStore(st))
		logger.Info("report storage enabled")
	}

	srv := server.New(cfg.Server.Addr, newPipeline(cfg), breakers, opts...)

	if viper.ConfigFileUsed() != "" {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadConfig(e, srv, newPipeline, logger)
		})
		viper.WatchConfig()
		logger.Info("watching config file", "path", viper.ConfigFileUsed())
	}

	return srv.ListenAndServe(ctx)
}

// reloadConfig applies a changed config file to new requests. Breaker state
// and the listen address are kept.
func reloadConfig(e fsnotify.Event, srv *server.Server, newPipeline func(config.Config) *pipeline.Pipeline, logger *slog.Logger) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("config reload failed, keeping previous settings", "path", e.Name, "error", err)
		return
	}
	applyLogLevel(cfg)
	srv.SetAnalyzer(newPipeline(cfg))
	logger.Info("config reloaded",
		"path", e.Name,
		"provider", cfg.LLM.Provider,
		"min_level", cfg.Pipeline.MinLevel,
		"log_level", cfg.Log.Level)
}
