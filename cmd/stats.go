package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/clock/system"
	"github.com/kmorey/greyhound-pipeline/internal/sink"
)

// newStatsCmd creates the command that fetches per-dog statistics for
// the dogs named in an existing race-card CSV.
func newStatsCmd() *cobra.Command {
	var (
		input       string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Fetch per-dog statistics for a crawled race card",
		Long: `stats reads dog names from a race-card CSV (the most recent
race_cards file by default), fetches each dog's statistics from the
stats site, and writes the dog_stats CSV.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if input == "" {
				input, err = latestRaceCards(cfg.Output.RawDir)
				if err != nil {
					return err
				}
			}
			if concurrency <= 0 {
				concurrency = cfg.Stats.Concurrency
			}

			dogs, err := dogNamesFromCSV(input)
			if err != nil {
				return err
			}
			if len(dogs) == 0 {
				return fmt.Errorf("no dog names found in %s", input)
			}
			logger.Info("fetching dog statistics",
				zap.String("input", input),
				zap.Int("dogs", len(dogs)),
				zap.Int("concurrency", concurrency))

			clk := system.New()
			fetcher := newStatsFetcher(cfg, clk, logger)
			result := fetcher.Fetch(cmd.Context(), dogs, concurrency)
			if len(result.Stats) == 0 {
				return errors.New("no dog statistics resolved")
			}

			writer := sink.NewCSVWriter(cfg.Output, clk, logger)
			path, err := writer.WriteDogStats(result.Stats)
			if err != nil {
				return err
			}

			logger.Info("dog statistics written",
				zap.String("path", path),
				zap.Int("resolved", len(result.Stats)),
				zap.Int("failed", len(result.Failed)))
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "race-card CSV to read dog names from (default: newest race_cards file)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "worker count; <=1 fetches sequentially (default from config)")
	return cmd
}

// latestRaceCards finds the newest dated race_cards CSV in dir. The
// filenames embed the date, so lexical order is chronological.
func latestRaceCards(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "race_cards_*.csv"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no race_cards CSV found in %s; run the cards command first", dir)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// dogNamesFromCSV extracts the Dog_Name column, deduplicated in
// first-seen order.
func dogNamesFromCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open race cards: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read race cards: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := -1
	for i, name := range rows[0] {
		if name == "Dog_Name" {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%s has no Dog_Name column", path)
	}

	seen := make(map[string]bool)
	var dogs []string
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		name := row[col]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		dogs = append(dogs, name)
	}
	return dogs, nil
}
