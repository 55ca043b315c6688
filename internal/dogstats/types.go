// Package dogstats fetches per-dog historical statistics from the stats
// site under its rate limiting, with retry and backoff tuned to the
// site's observed blocking behavior.
package dogstats

// DogStats is the terminal outcome for one dog key: parsed statistics,
// or a not-found marker when the site has no page for the dog.
type DogStats struct {
	Key      string
	Runs     int
	Wins     int
	WinPct   float64
	History  []HistoryRow
	NotFound bool
}

// HistoryRow is one line of the dog's race history table.
type HistoryRow struct {
	Date     string
	Track    string
	Trap     string
	Grade    string
	Distance string
	Going    string
	Runners  string
	Position string
	Beaten   string
	Time     string
	SP       string
	Comment  string
}

// Parser turns a fetched statistics page into a DogStats.
type Parser interface {
	Parse(html string, key string) (DogStats, error)
}

// Result partitions a fetch across keys into terminal outcomes and
// failures. A key appears in exactly one of the two.
type Result struct {
	Stats  map[string]DogStats
	Failed []string
}
