// Package features turns crawled runner records and fetched dog
// statistics into modeling-ready rows.
package features

import (
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/clock"
	"github.com/kmorey/greyhound-pipeline/internal/crawl"
	"github.com/kmorey/greyhound-pipeline/internal/dogstats"
)

// Row is one modeling-ready entry, one per runner per race.
type Row struct {
	Track      string
	RaceNumber string
	RaceTime   string
	DogName    string
	TrapNumber int

	Grade            string
	Distance         string
	RaceSize         int
	DistanceMeters   float64
	GradeScore       float64
	DistanceCategory string

	WinRate         float64
	SuccessRate     float64
	TotalExperience int
	StatsMatched    bool

	TrackDifficulty float64
	TrapAdvantage   float64
	InsideTrap      bool
	OutsideTrap     bool

	FormScore  float64
	FormLength int

	CreatedAt time.Time
}

// Empirical lookups carried over from the prediction model's
// calibration. Tracks and traps not listed fall back to the default.
var (
	trackDifficulty = map[string]float64{
		"Belle Vue": 0.8,
		"Crayford":  0.7,
		"Hove":      0.9,
		"Romford":   0.6,
	}
	trapAdvantage = map[int]float64{
		1: 0.9,
		2: 0.8,
		3: 0.7,
		4: 0.6,
		5: 0.65,
		6: 0.7,
	}
)

const (
	defaultTrackDifficulty = 0.7
	defaultTrapAdvantage   = 0.5
	neutralFormScore       = 0.5
)

var (
	leadingNumberPattern = regexp.MustCompile(`(\d+)`)
	gradeLetterPattern   = regexp.MustCompile(`([A-Z])`)
)

// Engineer derives feature rows by joining records with statistics on
// dog name.
type Engineer struct {
	clk    clock.Clock
	logger *zap.Logger
}

// NewEngineer builds a feature engineer.
func NewEngineer(clk clock.Clock, logger *zap.Logger) *Engineer {
	return &Engineer{clk: clk, logger: logger}
}

// Build joins runner records with dog statistics (left join on dog name;
// a missing dog still yields a row) and derives the feature columns.
func (e *Engineer) Build(records []crawl.RunnerRecord, stats map[string]dogstats.DogStats) []Row {
	if len(records) == 0 {
		return nil
	}

	sizes := raceSizes(records)
	now := e.clk.Now()

	rows := make([]Row, 0, len(records))
	matched := 0
	for _, rec := range records {
		row := Row{
			Track:      rec.Track,
			RaceNumber: rec.RaceNumber,
			RaceTime:   rec.RaceTime,
			DogName:    rec.DogName,
			Grade:      rec.Grade,
			Distance:   rec.Distance,
			RaceSize:   sizes[raceKey{rec.Track, rec.RaceNumber}],
			CreatedAt:  now,
		}

		row.TrapNumber = leadingInt(rec.Trap)
		row.DistanceMeters = float64(leadingInt(rec.Distance))
		row.GradeScore = gradeScore(rec.Grade)
		row.DistanceCategory = distanceCategory(row.DistanceMeters)

		if s, ok := stats[rec.DogName]; ok && !s.NotFound {
			row.StatsMatched = true
			row.WinRate = s.WinPct / 100
			row.TotalExperience = s.Runs
			matched++
		}
		row.SuccessRate = row.WinRate

		row.TrackDifficulty = lookupOr(trackDifficulty, rec.Track, defaultTrackDifficulty)
		row.TrapAdvantage = lookupOrInt(trapAdvantage, row.TrapNumber, defaultTrapAdvantage)
		row.InsideTrap = row.TrapNumber >= 1 && row.TrapNumber <= 2
		row.OutsideTrap = row.TrapNumber >= 5

		row.FormScore, row.FormLength = formScore(rec.Form)

		rows = append(rows, row)
	}

	e.logger.Info("features built",
		zap.Int("rows", len(rows)),
		zap.Int("stats_matched", matched),
	)
	return rows
}

type raceKey struct {
	track string
	race  string
}

func raceSizes(records []crawl.RunnerRecord) map[raceKey]int {
	sizes := make(map[raceKey]int)
	for _, rec := range records {
		sizes[raceKey{rec.Track, rec.RaceNumber}]++
	}
	return sizes
}

// leadingInt extracts the first run of digits, 0 when there is none.
func leadingInt(s string) int {
	m := leadingNumberPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// gradeScore folds a grade like "A5" into a single number: the letter's
// rank plus the grade number scaled down. Unparseable grades rank last.
func gradeScore(grade string) float64 {
	level := 6.0
	if m := gradeLetterPattern.FindStringSubmatch(grade); m != nil {
		if r := m[1][0]; r >= 'A' && r <= 'F' {
			level = float64(r-'A') + 1
		}
	}
	return level + float64(leadingInt(grade))/10
}

func distanceCategory(meters float64) string {
	switch {
	case meters <= 0:
		return "Unknown"
	case meters <= 300:
		return "Sprint"
	case meters <= 500:
		return "Middle"
	default:
		return "Long"
	}
}

// formScore reads a form string like "12T345" most-recent-last and
// scores finishing positions with recency weighting. Non-digit entries
// (trials, vacants) are skipped; no usable form scores neutral.
func formScore(form string) (score float64, length int) {
	if form == "" || form == crawl.Unknown {
		return neutralFormScore, 0
	}
	var weighted, weights float64
	for i, r := range form {
		if r < '1' || r > '6' {
			continue
		}
		w := float64(i + 1)
		weighted += w * float64('7'-r) / 6
		weights += w
	}
	if weights == 0 {
		return neutralFormScore, len(form)
	}
	return weighted / weights, len(form)
}

func lookupOr(m map[string]float64, key string, fallback float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}

func lookupOrInt(m map[int]float64, key int, fallback float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}
