// Package sink persists pipeline outputs: date-stamped CSV files
// mirroring the modeling workflow's layout, and a sqlite store for
// downstream querying.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/clock"
	"github.com/kmorey/greyhound-pipeline/internal/config"
	"github.com/kmorey/greyhound-pipeline/internal/crawl"
	"github.com/kmorey/greyhound-pipeline/internal/dogstats"
	"github.com/kmorey/greyhound-pipeline/internal/features"
)

const dateLayout = "2006-01-02"

var runnerHeader = []string{
	"Track", "Race_Number", "Race_Time", "Grade", "Distance",
	"Trap", "Dog_Name", "Form", "SP_Forecast", "Trainer",
}

var dogStatsHeader = []string{
	"Dog_Name", "Total_Runs", "Wins", "Win_Percentage", "Race_Count", "Not_Found",
}

var modelHeader = []string{
	"Track", "Race_Number", "Race_Time", "Dog_Name", "Trap_Number",
	"Grade", "Distance", "Race_Size", "Distance_Meters", "Grade_Score",
	"Distance_Category", "Win_Rate", "Success_Rate", "Total_Experience",
	"Stats_Matched", "Track_Difficulty", "Trap_Advantage", "Inside_Trap",
	"Outside_Trap", "Form_Score", "Form_Length", "Feature_Creation_Date",
}

// CSVWriter writes the pipeline's tabular outputs under the configured
// data directories, creating them as needed.
type CSVWriter struct {
	cfg    config.OutputConfig
	clk    clock.Clock
	logger *zap.Logger
}

// NewCSVWriter builds a CSV writer.
func NewCSVWriter(cfg config.OutputConfig, clk clock.Clock, logger *zap.Logger) *CSVWriter {
	return &CSVWriter{cfg: cfg, clk: clk, logger: logger}
}

// WriteRaceCards writes today's runner records to the raw directory.
func (w *CSVWriter) WriteRaceCards(records []crawl.RunnerRecord) (string, error) {
	name := fmt.Sprintf("race_cards_%s.csv", w.clk.Now().Format(dateLayout))
	path := filepath.Join(w.cfg.RawDir, name)
	return path, w.writeRunners(path, records)
}

// WriteRaceResults writes historical runner records to the results
// directory, labeled by the crawled date range.
func (w *CSVWriter) WriteRaceResults(records []crawl.RunnerRecord, dateLabel string) (string, error) {
	name := fmt.Sprintf("results_%s.csv", dateLabel)
	path := filepath.Join(w.cfg.ResultsDir, name)
	return path, w.writeRunners(path, records)
}

func (w *CSVWriter) writeRunners(path string, records []crawl.RunnerRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Track, r.RaceNumber, r.RaceTime, r.Grade, r.Distance,
			r.Trap, r.DogName, r.Form, r.ForecastPrice, r.Trainer,
		})
	}
	if err := w.writeFile(path, runnerHeader, rows); err != nil {
		return err
	}
	w.logger.Info("runner records written", zap.String("file", path), zap.Int("rows", len(rows)))
	return nil
}

// WriteDogStats writes the per-dog summary table, dogs sorted by name
// so reruns produce identical files.
func (w *CSVWriter) WriteDogStats(stats map[string]dogstats.DogStats) (string, error) {
	name := fmt.Sprintf("dog_stats_%s.csv", w.clk.Now().Format(dateLayout))
	path := filepath.Join(w.cfg.RawDir, name)

	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		s := stats[key]
		rows = append(rows, []string{
			s.Key,
			strconv.Itoa(s.Runs),
			strconv.Itoa(s.Wins),
			strconv.FormatFloat(s.WinPct, 'f', 1, 64),
			strconv.Itoa(len(s.History)),
			strconv.FormatBool(s.NotFound),
		})
	}
	if err := w.writeFile(path, dogStatsHeader, rows); err != nil {
		return "", err
	}
	w.logger.Info("dog statistics written", zap.String("file", path), zap.Int("dogs", len(rows)))
	return path, nil
}

// WriteModelRows produces the dual outputs: a daily file overwritten on
// every run, and a historical dataset the run's rows are merged into,
// replacing earlier rows with the same race/dog key.
func (w *CSVWriter) WriteModelRows(rows []features.Row) (daily, historical string, err error) {
	daily = filepath.Join(w.cfg.ProcessedDir, "todays_model.csv")
	historical = filepath.Join(w.cfg.ProcessedDir, "modeling_ready_dataset_historical.csv")

	fresh := make([][]string, 0, len(rows))
	for _, r := range rows {
		fresh = append(fresh, modelRow(r))
	}
	if err = w.writeFile(daily, modelHeader, fresh); err != nil {
		return "", "", err
	}

	combined, err := w.mergeHistorical(historical, fresh)
	if err != nil {
		return "", "", err
	}
	if err = w.writeFile(historical, modelHeader, combined); err != nil {
		return "", "", err
	}
	w.logger.Info("model rows written",
		zap.String("daily", daily),
		zap.String("historical", historical),
		zap.Int("rows", len(fresh)),
		zap.Int("historical_rows", len(combined)),
	)
	return daily, historical, nil
}

// mergeHistorical loads the existing historical rows, drops those the
// fresh rows supersede, and appends the fresh rows.
func (w *CSVWriter) mergeHistorical(path string, fresh [][]string) ([][]string, error) {
	superseded := make(map[string]struct{}, len(fresh))
	for _, row := range fresh {
		superseded[modelRowKey(row)] = struct{}{}
	}

	var combined [][]string
	existing, err := readCSVRows(path)
	if err != nil {
		return nil, err
	}
	for _, row := range existing {
		if _, ok := superseded[modelRowKey(row)]; ok {
			continue
		}
		combined = append(combined, row)
	}
	return append(combined, fresh...), nil
}

// modelRowKey is the dedup key: Track, Race_Number, Race_Time, Dog_Name.
func modelRowKey(row []string) string {
	if len(row) < 4 {
		return ""
	}
	return row[0] + "|" + row[1] + "|" + row[2] + "|" + row[3]
}

func modelRow(r features.Row) []string {
	return []string{
		r.Track, r.RaceNumber, r.RaceTime, r.DogName,
		strconv.Itoa(r.TrapNumber),
		r.Grade, r.Distance,
		strconv.Itoa(r.RaceSize),
		strconv.FormatFloat(r.DistanceMeters, 'f', 0, 64),
		strconv.FormatFloat(r.GradeScore, 'f', 2, 64),
		r.DistanceCategory,
		strconv.FormatFloat(r.WinRate, 'f', 4, 64),
		strconv.FormatFloat(r.SuccessRate, 'f', 4, 64),
		strconv.Itoa(r.TotalExperience),
		strconv.FormatBool(r.StatsMatched),
		strconv.FormatFloat(r.TrackDifficulty, 'f', 2, 64),
		strconv.FormatFloat(r.TrapAdvantage, 'f', 2, 64),
		strconv.FormatBool(r.InsideTrap),
		strconv.FormatBool(r.OutsideTrap),
		strconv.FormatFloat(r.FormScore, 'f', 4, 64),
		strconv.Itoa(r.FormLength),
		r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func (w *CSVWriter) writeFile(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

// readCSVRows returns the file's data rows, header dropped. A missing
// file is an empty dataset.
func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(all) <= 1 {
		return nil, nil
	}
	return all[1:], nil
}
