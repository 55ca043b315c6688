package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/clock/system"
	"github.com/kmorey/greyhound-pipeline/internal/crawl"
	"github.com/kmorey/greyhound-pipeline/internal/pipeline"
	"github.com/kmorey/greyhound-pipeline/internal/sink"
)

// newCardsCmd creates the crawl-only command: extract race cards or
// historical results and write the raw CSV, without statistics or
// feature engineering.
func newCardsCmd() *cobra.Command {
	var (
		mode      string
		startDate string
		endDate   string
	)

	cmd := &cobra.Command{
		Use:   "cards",
		Short: "Crawl race cards or results and write the raw CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer logger.Sync()

			clk := system.New()
			runner := pipeline.NewCrawlRunner(cfg, clk, logger)
			writer := sink.NewCSVWriter(cfg.Output, clk, logger)

			var (
				records []crawl.RunnerRecord
				path    string
			)
			switch mode {
			case "historical":
				dates, err := crawl.NewDateRange(startDate, endDate)
				if err != nil {
					return err
				}
				records, err = runner.RunHistorical(cmd.Context(), dates)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					return errors.New("crawl produced no records")
				}
				path, err = writer.WriteRaceResults(records, dates.Label())
				if err != nil {
					return err
				}
			case "today":
				records, err = runner.RunToday(cmd.Context())
				if err != nil {
					return err
				}
				if len(records) == 0 {
					return errors.New("crawl produced no records")
				}
				path, err = writer.WriteRaceCards(records)
				if err != nil {
					return err
				}
			default:
				return errors.New(`--mode must be "today" or "historical"`)
			}

			logger.Info("crawl finished",
				zap.Int("records", len(records)),
				zap.String("path", path))
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "today", `extraction mode: "today" or "historical"`)
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date YYYY-MM-DD (historical mode)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date YYYY-MM-DD (historical mode, defaults to start date)")
	return cmd
}
