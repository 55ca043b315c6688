package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// sqlite driver, registered as "sqlite3".
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/crawl"
	"github.com/kmorey/greyhound-pipeline/internal/dogstats"
	"github.com/kmorey/greyhound-pipeline/internal/features"
)

const schema = `
CREATE TABLE IF NOT EXISTS runners (
	track        TEXT NOT NULL,
	race_number  TEXT NOT NULL,
	race_time    TEXT NOT NULL,
	dog_name     TEXT NOT NULL,
	grade        TEXT,
	distance     TEXT,
	trap         TEXT,
	form         TEXT,
	sp_forecast  TEXT,
	trainer      TEXT,
	PRIMARY KEY (track, race_number, race_time, dog_name)
);
CREATE TABLE IF NOT EXISTS dog_stats (
	dog_name     TEXT PRIMARY KEY,
	runs         INTEGER NOT NULL,
	wins         INTEGER NOT NULL,
	win_pct      REAL NOT NULL,
	history_rows INTEGER NOT NULL,
	not_found    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS model_rows (
	track             TEXT NOT NULL,
	race_number       TEXT NOT NULL,
	race_time         TEXT NOT NULL,
	dog_name          TEXT NOT NULL,
	trap_number       INTEGER,
	grade             TEXT,
	distance          TEXT,
	race_size         INTEGER,
	distance_meters   REAL,
	grade_score       REAL,
	distance_category TEXT,
	win_rate          REAL,
	success_rate      REAL,
	total_experience  INTEGER,
	stats_matched     INTEGER,
	track_difficulty  REAL,
	trap_advantage    REAL,
	inside_trap       INTEGER,
	outside_trap      INTEGER,
	form_score        REAL,
	form_length       INTEGER,
	created_at        TEXT,
	PRIMARY KEY (track, race_number, race_time, dog_name)
);`

// Store persists pipeline outputs into a sqlite database. Rows are
// upserted on their natural keys, so re-running a date is idempotent.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenStore opens (creating if needed) the sqlite database at path and
// ensures the schema exists.
func OpenStore(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRunners upserts runner records in one transaction.
func (s *Store) SaveRunners(ctx context.Context, records []crawl.RunnerRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO runners
			(track, race_number, race_time, dog_name, grade, distance, trap, form, sp_forecast, trainer)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range records {
			if _, err := stmt.ExecContext(ctx,
				r.Track, r.RaceNumber, r.RaceTime, r.DogName,
				r.Grade, r.Distance, r.Trap, r.Form, r.ForecastPrice, r.Trainer,
			); err != nil {
				return fmt.Errorf("insert runner %s: %w", r.Key(), err)
			}
		}
		s.logger.Debug("runners stored", zap.Int("rows", len(records)))
		return nil
	})
}

// SaveDogStats upserts per-dog summary statistics.
func (s *Store) SaveDogStats(ctx context.Context, stats map[string]dogstats.DogStats) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO dog_stats
			(dog_name, runs, wins, win_pct, history_rows, not_found)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, d := range stats {
			if _, err := stmt.ExecContext(ctx,
				d.Key, d.Runs, d.Wins, d.WinPct, len(d.History), d.NotFound,
			); err != nil {
				return fmt.Errorf("insert dog stats %s: %w", d.Key, err)
			}
		}
		s.logger.Debug("dog stats stored", zap.Int("dogs", len(stats)))
		return nil
	})
}

// SaveModelRows upserts feature rows.
func (s *Store) SaveModelRows(ctx context.Context, rows []features.Row) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO model_rows
			(track, race_number, race_time, dog_name, trap_number, grade, distance,
			 race_size, distance_meters, grade_score, distance_category, win_rate,
			 success_rate, total_experience, stats_matched, track_difficulty,
			 trap_advantage, inside_trap, outside_trap, form_score, form_length, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx,
				r.Track, r.RaceNumber, r.RaceTime, r.DogName, r.TrapNumber,
				r.Grade, r.Distance, r.RaceSize, r.DistanceMeters, r.GradeScore,
				r.DistanceCategory, r.WinRate, r.SuccessRate, r.TotalExperience,
				r.StatsMatched, r.TrackDifficulty, r.TrapAdvantage, r.InsideTrap,
				r.OutsideTrap, r.FormScore, r.FormLength,
				r.CreatedAt.Format("2006-01-02 15:04:05"),
			); err != nil {
				return fmt.Errorf("insert model row %s/%s/%s: %w", r.Track, r.RaceNumber, r.DogName, err)
			}
		}
		s.logger.Debug("model rows stored", zap.Int("rows", len(rows)))
		return nil
	})
}

// CountRunners reports the stored runner rows, for summaries and tests.
func (s *Store) CountRunners(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runners`).Scan(&n)
	return n, err
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
