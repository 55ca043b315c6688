// Package pipeline orchestrates the full run: crawl, dog statistics,
// feature engineering, and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/clock"
	"github.com/kmorey/greyhound-pipeline/internal/crawl"
	"github.com/kmorey/greyhound-pipeline/internal/dogstats"
	"github.com/kmorey/greyhound-pipeline/internal/features"
)

// Mode selects which crawl the pipeline runs.
type Mode string

const (
	ModeToday      Mode = "today"
	ModeHistorical Mode = "historical"
)

// CardSource produces runner records for a crawl mode.
type CardSource interface {
	RunToday(ctx context.Context) ([]crawl.RunnerRecord, error)
	RunHistorical(ctx context.Context, dates crawl.DateRange) ([]crawl.RunnerRecord, error)
}

// StatsSource resolves dog statistics for a key set.
type StatsSource interface {
	Fetch(ctx context.Context, keys []string, concurrency int) dogstats.Result
}

// FeatureBuilder derives model rows from records and statistics.
type FeatureBuilder interface {
	Build(records []crawl.RunnerRecord, stats map[string]dogstats.DogStats) []features.Row
}

// TabularSink persists CSV outputs.
type TabularSink interface {
	WriteRaceCards(records []crawl.RunnerRecord) (string, error)
	WriteRaceResults(records []crawl.RunnerRecord, dateLabel string) (string, error)
	WriteDogStats(stats map[string]dogstats.DogStats) (string, error)
	WriteModelRows(rows []features.Row) (daily, historical string, err error)
}

// DatasetStore persists outputs for querying. Optional; a nil store
// skips database persistence.
type DatasetStore interface {
	SaveRunners(ctx context.Context, records []crawl.RunnerRecord) error
	SaveDogStats(ctx context.Context, stats map[string]dogstats.DogStats) error
	SaveModelRows(ctx context.Context, rows []features.Row) error
}

// Summary is the end-of-run report.
type Summary struct {
	RunID         string
	Mode          Mode
	Records       int
	Tracks        int
	Races         int
	Dogs          int
	StatsResolved int
	StatsFailed   int
	Coverage      float64
	ModelRows     int
	Duration      time.Duration
}

// Pipeline wires the stages together. Crawl emptiness is fatal; dog
// statistics are best-effort and an empty fetch only degrades feature
// coverage.
type Pipeline struct {
	cards       CardSource
	stats       StatsSource
	engineer    FeatureBuilder
	sink        TabularSink
	store       DatasetStore
	clk         clock.Clock
	logger      *zap.Logger
	concurrency int
}

// New builds a pipeline. store may be nil.
func New(
	cards CardSource,
	stats StatsSource,
	engineer FeatureBuilder,
	sink TabularSink,
	store DatasetStore,
	clk clock.Clock,
	logger *zap.Logger,
	concurrency int,
) *Pipeline {
	return &Pipeline{
		cards:       cards,
		stats:       stats,
		engineer:    engineer,
		sink:        sink,
		store:       store,
		clk:         clk,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Run executes the full pipeline. The date arguments only apply to
// historical mode; a single date may be given as either bound.
func (p *Pipeline) Run(ctx context.Context, mode Mode, startDate, endDate string) (Summary, error) {
	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", runID))
	start := p.clk.Now()

	logger.Info("pipeline started", zap.String("mode", string(mode)))

	records, dateLabel, err := p.crawlRecords(ctx, mode, startDate, endDate)
	if err != nil {
		return Summary{}, err
	}
	if len(records) == 0 {
		return Summary{}, errors.New("crawl produced no records")
	}
	if err := p.persistRecords(ctx, mode, records, dateLabel, logger); err != nil {
		return Summary{}, err
	}

	keys := uniqueDogs(records)
	res := p.stats.Fetch(ctx, keys, p.concurrency)
	if len(res.Stats) == 0 {
		logger.Warn("no dog statistics resolved, proceeding with reduced feature coverage",
			zap.Int("failed", len(res.Failed)))
	} else {
		if _, err := p.sink.WriteDogStats(res.Stats); err != nil {
			return Summary{}, fmt.Errorf("write dog statistics: %w", err)
		}
		if p.store != nil {
			if err := p.store.SaveDogStats(ctx, res.Stats); err != nil {
				return Summary{}, fmt.Errorf("store dog statistics: %w", err)
			}
		}
	}

	rows := p.engineer.Build(records, res.Stats)
	if len(rows) == 0 {
		return Summary{}, errors.New("feature engineering produced no rows")
	}
	if _, _, err := p.sink.WriteModelRows(rows); err != nil {
		return Summary{}, fmt.Errorf("write model rows: %w", err)
	}
	if p.store != nil {
		if err := p.store.SaveModelRows(ctx, rows); err != nil {
			return Summary{}, fmt.Errorf("store model rows: %w", err)
		}
	}

	summary := p.summarize(runID, mode, records, res, rows, start)
	logSummary(logger, summary)
	return summary, nil
}

func (p *Pipeline) crawlRecords(ctx context.Context, mode Mode, startDate, endDate string) ([]crawl.RunnerRecord, string, error) {
	switch mode {
	case ModeHistorical:
		dates, err := crawl.NewDateRange(startDate, endDate)
		if err != nil {
			return nil, "", err
		}
		records, err := p.cards.RunHistorical(ctx, dates)
		if err != nil {
			return nil, "", fmt.Errorf("historical crawl: %w", err)
		}
		return records, dates.Label(), nil
	case ModeToday:
		records, err := p.cards.RunToday(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("crawl: %w", err)
		}
		return records, "", nil
	default:
		return nil, "", fmt.Errorf("unknown mode %q", mode)
	}
}

func (p *Pipeline) persistRecords(ctx context.Context, mode Mode, records []crawl.RunnerRecord, dateLabel string, logger *zap.Logger) error {
	var path string
	var err error
	if mode == ModeHistorical {
		path, err = p.sink.WriteRaceResults(records, dateLabel)
	} else {
		path, err = p.sink.WriteRaceCards(records)
	}
	if err != nil {
		return fmt.Errorf("write runner records: %w", err)
	}
	logger.Info("runner records persisted", zap.String("file", path), zap.Int("records", len(records)))

	if p.store != nil {
		if err := p.store.SaveRunners(ctx, records); err != nil {
			return fmt.Errorf("store runner records: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) summarize(runID string, mode Mode, records []crawl.RunnerRecord, res dogstats.Result, rows []features.Row, start time.Time) Summary {
	tracks := make(map[string]struct{})
	races := make(map[string]struct{})
	dogs := make(map[string]struct{})
	for _, r := range records {
		tracks[r.Track] = struct{}{}
		races[r.Track+"|"+r.RaceNumber] = struct{}{}
		dogs[r.DogName] = struct{}{}
	}
	coverage := 0.0
	if len(dogs) > 0 {
		coverage = float64(len(res.Stats)) / float64(len(dogs)) * 100
	}
	return Summary{
		RunID:         runID,
		Mode:          mode,
		Records:       len(records),
		Tracks:        len(tracks),
		Races:         len(races),
		Dogs:          len(dogs),
		StatsResolved: len(res.Stats),
		StatsFailed:   len(res.Failed),
		Coverage:      coverage,
		ModelRows:     len(rows),
		Duration:      p.clk.Now().Sub(start),
	}
}

func logSummary(logger *zap.Logger, s Summary) {
	logger.Info("pipeline completed",
		zap.String("mode", string(s.Mode)),
		zap.Int("records", s.Records),
		zap.Int("tracks", s.Tracks),
		zap.Int("races", s.Races),
		zap.Int("dogs", s.Dogs),
		zap.Int("stats_resolved", s.StatsResolved),
		zap.Int("stats_failed", s.StatsFailed),
		zap.Float64("stats_coverage_pct", s.Coverage),
		zap.Int("model_rows", s.ModelRows),
		zap.Duration("duration", s.Duration),
	)
}

// uniqueDogs returns the distinct dog names in first-seen order.
func uniqueDogs(records []crawl.RunnerRecord) []string {
	seen := make(map[string]struct{}, len(records))
	var keys []string
	for _, r := range records {
		if _, dup := seen[r.DogName]; dup {
			continue
		}
		seen[r.DogName] = struct{}{}
		keys = append(keys, r.DogName)
	}
	return keys
}
