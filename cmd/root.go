// Package cmd defines and implements the CLI commands for the greyhound
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/clock"
	"github.com/kmorey/greyhound-pipeline/internal/config"
	"github.com/kmorey/greyhound-pipeline/internal/dogstats"
	"github.com/kmorey/greyhound-pipeline/internal/extract"
	"github.com/kmorey/greyhound-pipeline/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "greyhound",
		Short: "Greyhound racing data pipeline",
		Long: `greyhound crawls race cards and historical results from the betting
site, enriches them with per-dog statistics, and produces modeling-ready
datasets (CSV and sqlite).`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCardsCmd())
	cmd.AddCommand(newStatsCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadEnvironment builds the configuration and logger shared by every
// command invocation.
func loadEnvironment() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func newStatsFetcher(cfg config.Config, clk clock.Clock, logger *zap.Logger) *dogstats.Fetcher {
	return dogstats.New(extract.NewStatsParser(logger), clk, logger, dogstats.Config{
		BaseURL:       cfg.Stats.BaseURL,
		Timeout:       cfg.Stats.Timeout,
		BaseDelay:     cfg.Stats.BaseDelay,
		MaxDelay:      cfg.Stats.MaxDelay,
		MaxAttempts:   cfg.Stats.MaxAttempts,
		BackoffFactor: cfg.Stats.BackoffFactor,
		DelayGrowth:   cfg.Stats.DelayGrowth,
	})
}
