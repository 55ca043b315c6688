package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/clock/system"
	"github.com/kmorey/greyhound-pipeline/internal/features"
	"github.com/kmorey/greyhound-pipeline/internal/pipeline"
	"github.com/kmorey/greyhound-pipeline/internal/sink"
)

// newRunCmd creates the command that executes the full pipeline: crawl,
// dog statistics, feature engineering, and persistence.
func newRunCmd() *cobra.Command {
	var (
		mode      string
		startDate string
		endDate   string
		noStore   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline end to end",
		Long: `run crawls race cards (or historical results), fetches per-dog
statistics, engineers model features, and writes the CSV and sqlite
outputs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer logger.Sync()

			clk := system.New()

			var store pipeline.DatasetStore
			if !noStore {
				s, err := sink.OpenStore(cfg.Output.SQLitePath, logger)
				if err != nil {
					return fmt.Errorf("open dataset store: %w", err)
				}
				defer s.Close()
				store = s
			}

			p := pipeline.New(
				pipeline.NewCrawlRunner(cfg, clk, logger),
				newStatsFetcher(cfg, clk, logger),
				features.NewEngineer(clk, logger),
				sink.NewCSVWriter(cfg.Output, clk, logger),
				store,
				clk,
				logger,
				cfg.Stats.Concurrency,
			)

			summary, err := p.Run(cmd.Context(), pipeline.Mode(mode), startDate, endDate)
			if err != nil {
				return err
			}

			logger.Info("run finished",
				zap.String("run_id", summary.RunID),
				zap.Int("records", summary.Records),
				zap.Int("model_rows", summary.ModelRows),
				zap.Float64("stats_coverage", summary.Coverage),
				zap.Duration("duration", summary.Duration))
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "today", `extraction mode: "today" or "historical"`)
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date YYYY-MM-DD (historical mode)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date YYYY-MM-DD (historical mode, defaults to start date)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "skip sqlite persistence")
	return cmd
}
