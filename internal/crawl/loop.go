package crawl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/clock"
)

// Config holds the crawl loop's tuning knobs. The dedup window and overlap
// threshold are empirical values tuned against the site's caching bug; do
// not revisit them without new calibration data.
type Config struct {
	BaseURL          string
	CacheBustEvery   int           // light bust every N-th same-track navigation
	FreshURLEvery    int           // cache-defeating query param every N-th navigation
	StaleRetryWait   time.Duration // extra settle before re-extraction on suspected staleness
	DedupWindow      int           // accepted records considered by the staleness check
	OverlapThreshold float64       // overlap ratio above which a read is suspect
}

// Loop coordinates cache control, navigation, classification, extraction,
// and duplicate detection for each queued race target. It is
// single-threaded: one browser session, one race at a time.
type Loop struct {
	browser          Browser
	buster           CacheBuster
	classifier       *Classifier
	enum             *Enumerator
	cardExtractor    RecordExtractor
	resultsExtractor RecordExtractor
	clk              clock.Clock
	logger           *zap.Logger
	cfg              Config
}

// NewLoop builds a crawl loop. The caller owns the browser session's
// lifecycle and must close it whatever way the crawl ends.
func NewLoop(
	b Browser,
	buster CacheBuster,
	classifier *Classifier,
	enum *Enumerator,
	cardExtractor RecordExtractor,
	resultsExtractor RecordExtractor,
	clk clock.Clock,
	logger *zap.Logger,
	cfg Config,
) *Loop {
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 6
	}
	if cfg.OverlapThreshold <= 0 {
		cfg.OverlapThreshold = 0.5
	}
	return &Loop{
		browser:          b,
		buster:           buster,
		classifier:       classifier,
		enum:             enum,
		cardExtractor:    cardExtractor,
		resultsExtractor: resultsExtractor,
		clk:              clk,
		logger:           logger,
		cfg:              cfg,
	}
}

// state is the per-invocation crawl session: the current track, the
// accepted records, and the dedup index. It is created by a Run call and
// discarded with it, never shared.
type state struct {
	currentTrack string
	records      []RunnerRecord
	accepted     map[string]struct{}
}

func newState() *state {
	return &state{accepted: make(map[string]struct{})}
}

// accept appends records, dropping any exact natural-key duplicates, and
// advances the staleness window.
func (s *state) accept(recs []RunnerRecord) int {
	added := 0
	for _, r := range recs {
		key := r.Key()
		if _, dup := s.accepted[key]; dup {
			continue
		}
		s.accepted[key] = struct{}{}
		s.records = append(s.records, r)
		added++
	}
	return added
}

// suspectStale reports whether the new race's dog names overlap the last
// up-to-window accepted records enough to suggest a stale-cache read.
func (s *state) suspectStale(recs []RunnerRecord, window int, threshold float64) bool {
	if len(s.records) == 0 || len(recs) == 0 {
		return false
	}
	if window > len(s.records) {
		window = len(s.records)
	}
	recent := make(map[string]struct{}, window)
	for _, r := range s.records[len(s.records)-window:] {
		recent[r.DogName] = struct{}{}
	}
	current := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		current[r.DogName] = struct{}{}
	}
	overlap := 0
	for name := range current {
		if _, ok := recent[name]; ok {
			overlap++
		}
	}
	return overlap > 0 && float64(overlap) > threshold*float64(len(current))
}

// RunToday crawls today's race cards. An empty record set is returned as
// empty, not as an error; the caller decides how severe that is.
func (l *Loop) RunToday(ctx context.Context) ([]RunnerRecord, error) {
	targets, err := l.enum.Today(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate today's races: %w", err)
	}
	st := newState()
	l.crawlTargets(ctx, st, targets)
	l.logger.Info("crawl finished",
		zap.Int("targets", len(targets)),
		zap.Int("records", len(st.records)),
		zap.Int("cache_busts", l.buster.Count()),
	)
	return st.records, nil
}

// RunHistorical crawls results pages across an inclusive date range. A
// date that fails to enumerate contributes zero records and never aborts
// subsequent dates.
func (l *Loop) RunHistorical(ctx context.Context, dates DateRange) ([]RunnerRecord, error) {
	st := newState()
	for _, date := range dates.Dates() {
		targets, err := l.enum.ForDate(ctx, date)
		if err != nil {
			l.logger.Warn("date enumeration failed, skipping date",
				zap.String("date", date), zap.Error(err))
			continue
		}
		l.crawlTargets(ctx, st, targets)
		l.logger.Info("date crawled",
			zap.String("date", date),
			zap.Int("targets", len(targets)),
			zap.Int("records_so_far", len(st.records)),
		)
	}
	l.logger.Info("historical crawl finished",
		zap.Int("records", len(st.records)),
		zap.Int("cache_busts", l.buster.Count()),
	)
	return st.records, nil
}

func (l *Loop) crawlTargets(ctx context.Context, st *state, targets []RaceTarget) {
	for i, target := range targets {
		recs := l.crawlOne(ctx, st, target, i)
		if len(recs) == 0 {
			observeRace("skipped")
			continue
		}
		added := st.accept(recs)
		observeRace("accepted")
		observeRunners(added)
		l.logger.Debug("race accepted",
			zap.String("track", target.Track),
			zap.String("race", target.RaceNumber),
			zap.Int("runners", added),
		)
	}
}

// crawlOne runs one target through the per-race state machine and returns
// the records to accept, or nil when the race is skipped.
func (l *Loop) crawlOne(ctx context.Context, st *state, target RaceTarget, idx int) []RunnerRecord {
	l.applyBustPolicy(ctx, st, target, idx)

	url := l.cfg.BaseURL + target.Path
	if l.cfg.FreshURLEvery > 0 && idx%l.cfg.FreshURLEvery == 0 {
		url = appendQuery(url, "t", l.clk.Now().Unix())
	}
	if err := l.browser.Navigate(ctx, url); err != nil {
		l.logger.Warn("navigation failed, skipping race",
			zap.String("track", target.Track),
			zap.String("race", target.RaceNumber),
			zap.Error(err),
		)
		return nil
	}

	recs, kind := l.extractCurrent(ctx, target)
	if kind == PageNotReady {
		// One driver-level refresh-and-rewait, then reclassify once.
		if err := l.browser.Refresh(ctx); err != nil {
			l.logger.Debug("refresh failed", zap.Error(err))
		}
		recs, kind = l.extractCurrent(ctx, target)
		if kind == PageNotReady {
			l.logger.Warn("page never became ready, skipping race",
				zap.String("track", target.Track),
				zap.String("race", target.RaceNumber),
			)
			return nil
		}
	}
	if len(recs) == 0 {
		return nil
	}

	if st.suspectStale(recs, l.cfg.DedupWindow, l.cfg.OverlapThreshold) {
		observeStaleRetry()
		l.logger.Info("suspected stale-cache read, retrying once",
			zap.String("track", target.Track),
			zap.String("race", target.RaceNumber),
		)
		recs = l.retryStale(ctx, target, url)
		if len(recs) == 0 || st.suspectStale(recs, l.cfg.DedupWindow, l.cfg.OverlapThreshold) {
			l.logger.Warn("retry still stale or empty, skipping race",
				zap.String("track", target.Track),
				zap.String("race", target.RaceNumber),
			)
			return nil
		}
	}
	return recs
}

// applyBustPolicy performs an aggressive bust on track change and a light
// bust every N-th same-track navigation.
func (l *Loop) applyBustPolicy(ctx context.Context, st *state, target RaceTarget, idx int) {
	if target.Track != st.currentTrack {
		l.logger.Debug("track switch", zap.String("from", st.currentTrack), zap.String("to", target.Track))
		l.buster.Aggressive(ctx)
		observeCacheBust("aggressive")
		st.currentTrack = target.Track
		return
	}
	if l.cfg.CacheBustEvery > 0 && idx%l.cfg.CacheBustEvery == 0 {
		l.buster.Light(ctx)
		observeCacheBust("light")
	}
}

// retryStale forces one aggressive bust, re-navigates with a
// cache-defeating parameter, waits longer, and re-extracts once. There is
// no second retry.
func (l *Loop) retryStale(ctx context.Context, target RaceTarget, url string) []RunnerRecord {
	l.buster.Aggressive(ctx)
	observeCacheBust("aggressive")

	retryURL := appendQuery(url, "refresh", l.clk.Now().Unix())
	if err := l.browser.Navigate(ctx, retryURL); err != nil {
		l.logger.Debug("stale retry navigation failed", zap.Error(err))
		return nil
	}
	l.clk.Sleep(ctx, l.cfg.StaleRetryWait)

	recs, kind := l.extractCurrent(ctx, target)
	if kind == PageNotReady {
		return nil
	}
	return recs
}

// extractCurrent classifies the current page and dispatches to the
// matching extraction collaborator.
func (l *Loop) extractCurrent(ctx context.Context, target RaceTarget) ([]RunnerRecord, PageKind) {
	src, err := l.browser.PageSource(ctx)
	if err != nil {
		l.logger.Debug("page source unavailable", zap.Error(err))
		return nil, PageNotReady
	}
	kind := l.classifier.Classify(src)
	if kind == PageNotReady {
		return nil, kind
	}
	doc, err := parseDocument(src)
	if err != nil {
		return nil, PageNotReady
	}
	switch kind {
	case PageCard:
		return l.cardExtractor.Extract(doc, target), kind
	case PageResults:
		return l.resultsExtractor.Extract(doc, target), kind
	default:
		return nil, PageNotReady
	}
}

// CacheBusts reports the session's bust counter for end-of-crawl summaries.
func (l *Loop) CacheBusts() int {
	return l.buster.Count()
}

func appendQuery(url, key string, value int64) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s%s=%d", url, sep, key, value)
}
