// Package crawl implements the stateful race-card crawl engine: meeting and
// race enumeration, page classification, cache-bust policy, and the per-race
// state machine with duplicate/staleness detection.
package crawl

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Unknown is the placeholder for fields the site failed to yield. Parsing
// gaps are never fatal; they degrade to this value.
const Unknown = "unknown"

// RaceTarget identifies one race page to visit. Produced by the enumerator
// and never mutated afterwards.
type RaceTarget struct {
	Track      string
	RaceNumber string
	RaceTime   string
	Path       string // SPA fragment path relative to the base URL
}

// RunnerRecord is one entrant in one race.
type RunnerRecord struct {
	Track         string
	RaceNumber    string
	RaceTime      string
	Grade         string
	Distance      string
	Trap          string // "1".."8" or Unknown
	DogName       string
	Form          string
	ForecastPrice string
	Trainer       string
}

// Key is the natural dedup key for accepted records.
func (r RunnerRecord) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", r.Track, r.RaceNumber, r.RaceTime, r.DogName)
}

// Browser is the live SPA session the crawl drives. Implemented by
// browser.Session; faked in tests.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	PageSource(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

// CacheBuster invalidates the SPA's client-side caches. Implemented by
// browser.Buster.
type CacheBuster interface {
	Aggressive(ctx context.Context)
	Light(ctx context.Context)
	Count() int
}

// RecordExtractor turns a loaded page into runner records for one target.
// Two variants exist, selected by page classification; their parsing rules
// are deliberately outside this package.
type RecordExtractor interface {
	Extract(doc *goquery.Document, target RaceTarget) []RunnerRecord
}

func parseDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
