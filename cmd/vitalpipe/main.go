// Command vitalpipe runs the patient telemetry pipeline: normalize, rules,
// aggregate, and query stages, individually or combined in one process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitalstream/telemetry-pipeline/internal/config"
	"github.com/vitalstream/telemetry-pipeline/internal/telemetry"
)

var (
	configPath string
	logJSON    bool
	logLevel   string

	rootCtx    context.Context
	rootCancel context.CancelFunc

	telemetryProviders *telemetry.Providers
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vitalpipe",
	Short: "vitalpipe - streaming patient telemetry pipeline",
	Long:  `Normalizes, scores, and aggregates patient vital-sign telemetry from bedside devices.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if telemetryProviders != nil {
			_ = telemetryProviders.Shutdown(context.Background())
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file layered under environment variables")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddGroup(&cobra.Group{ID: "stages", Title: "Pipeline Stages:"})
	rootCmd.AddGroup(&cobra.Group{ID: "ops", Title: "Operations:"})

	rootCmd.AddCommand(normalizeCmd, rulesCmd, aggregateCmd, queryCmd, pipelineCmd, busCmd)
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	level, err := parseLevel(logLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := telemetry.NewLogger(os.Stderr, logJSON || cfg.LogJSON, level)
	logger = logger.With("service", cfg.ServiceName)

	providers, err := telemetry.Bootstrap(cfg.ServiceName)
	if err != nil {
		logger.Warn("tracing/metrics not active", "error", err)
	} else {
		telemetryProviders = providers
	}

	return cfg, logger, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q: %w", raw, err)
	}
	return level, nil
}
