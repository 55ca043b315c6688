package crawl

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/clock"
)

// Link markers for the two site modes. These track the SPA's routing
// scheme; everything else about the markup lives in the extractors.
const (
	meetingCardsHrefMarker   = "meeting-races"
	meetingResultsHrefMarker = "meeting-results"
	cardHrefMarker           = "#card/"
	resultHrefMarker         = "#result/"
	resultsListPathFormat    = "#results-list/r_date=%s"

	hydrationPollStep = 500 * time.Millisecond
)

var raceNumberPattern = regexp.MustCompile(`Race (\d+)`)

// Enumerator walks the meeting list (today mode) or the date-indexed
// results list (historical mode) and produces an ordered queue of race
// targets.
type Enumerator struct {
	browser       Browser
	clk           clock.Clock
	logger        *zap.Logger
	baseURL       string
	hydrationWait time.Duration
}

// NewEnumerator builds an enumerator over the given session.
func NewEnumerator(b Browser, clk clock.Clock, logger *zap.Logger, baseURL string, hydrationWait time.Duration) *Enumerator {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Enumerator{
		browser:       b,
		clk:           clk,
		logger:        logger,
		baseURL:       baseURL,
		hydrationWait: hydrationWait,
	}
}

// Today loads the landing page and enumerates every race across today's
// meetings. Duplicate meeting entries with the same track name are
// dropped, first occurrence wins.
func (e *Enumerator) Today(ctx context.Context) ([]RaceTarget, error) {
	if err := e.browser.Navigate(ctx, e.baseURL); err != nil {
		return nil, fmt.Errorf("load landing page: %w", err)
	}
	doc, err := e.currentDocument(ctx)
	if err != nil {
		return nil, err
	}

	meetings := e.distinctMeetings(doc, meetingCardsHrefMarker)
	e.logger.Info("meetings found", zap.Int("count", len(meetings)))

	var targets []RaceTarget
	for _, m := range meetings {
		raceTargets, err := e.racesForMeeting(ctx, m, cardHrefMarker, false)
		if err != nil {
			e.logger.Warn("meeting enumeration failed",
				zap.String("track", m.track), zap.Error(err))
			continue
		}
		targets = append(targets, raceTargets...)
	}
	return targets, nil
}

// ForDate loads the results list for one calendar date and enumerates its
// races. The results list hydrates slowly, so meeting links are polled for
// up to the hydration wait before giving up.
func (e *Enumerator) ForDate(ctx context.Context, date string) ([]RaceTarget, error) {
	url := e.baseURL + fmt.Sprintf(resultsListPathFormat, date)
	if err := e.browser.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("load results list for %s: %w", date, err)
	}

	doc, err := e.awaitMeetings(ctx)
	if err != nil {
		return nil, fmt.Errorf("results list for %s: %w", date, err)
	}

	meetings := e.distinctMeetings(doc, meetingResultsHrefMarker)
	e.logger.Info("result meetings found", zap.String("date", date), zap.Int("count", len(meetings)))

	var targets []RaceTarget
	for _, m := range meetings {
		raceTargets, err := e.racesForMeeting(ctx, m, resultHrefMarker, true)
		if err != nil {
			e.logger.Warn("result meeting enumeration failed",
				zap.String("track", m.track), zap.String("date", date), zap.Error(err))
			continue
		}
		targets = append(targets, raceTargets...)
	}
	return targets, nil
}

type meetingEntry struct {
	track string
	href  string
}

func (e *Enumerator) distinctMeetings(doc *goquery.Document, hrefMarker string) []meetingEntry {
	var meetings []meetingEntry
	seen := make(map[string]struct{})

	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || !strings.Contains(href, hrefMarker) {
			return
		}
		track := trackName(sel)
		if track == "" {
			return
		}
		if _, dup := seen[track]; dup {
			return
		}
		seen[track] = struct{}{}
		meetings = append(meetings, meetingEntry{track: track, href: href})
	})
	return meetings
}

func (e *Enumerator) racesForMeeting(ctx context.Context, m meetingEntry, raceHrefMarker string, textFallback bool) ([]RaceTarget, error) {
	if err := e.browser.Navigate(ctx, e.baseURL+m.href); err != nil {
		return nil, fmt.Errorf("load meeting page: %w", err)
	}
	doc, err := e.currentDocument(ctx)
	if err != nil {
		return nil, err
	}

	var targets []RaceTarget
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || !strings.Contains(href, raceHrefMarker) {
			return
		}
		raceTime, raceNumber := parseRaceLink(sel, textFallback)
		targets = append(targets, RaceTarget{
			Track:      m.track,
			RaceNumber: raceNumber,
			RaceTime:   raceTime,
			Path:       href,
		})
	})
	e.logger.Debug("races found for meeting", zap.String("track", m.track), zap.Int("count", len(targets)))
	return targets, nil
}

// awaitMeetings polls the page until at least one results meeting link has
// rendered or the hydration wait elapses, returning the last document seen.
func (e *Enumerator) awaitMeetings(ctx context.Context) (*goquery.Document, error) {
	deadline := e.clk.Now().Add(e.hydrationWait)
	for {
		doc, err := e.currentDocument(ctx)
		if err != nil {
			return nil, err
		}
		found := false
		doc.Find("a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if href, ok := sel.Attr("href"); ok && strings.Contains(href, meetingResultsHrefMarker) {
				found = true
				return false
			}
			return true
		})
		if found || !e.clk.Now().Before(deadline) || ctx.Err() != nil {
			return doc, nil
		}
		e.clk.Sleep(ctx, hydrationPollStep)
	}
}

func (e *Enumerator) currentDocument(ctx context.Context) (*goquery.Document, error) {
	src, err := e.browser.PageSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page source: %w", err)
	}
	doc, err := parseDocument(src)
	if err != nil {
		return nil, fmt.Errorf("parse page source: %w", err)
	}
	return doc, nil
}

// trackName takes the first line of the link's h4 heading.
func trackName(sel *goquery.Selection) string {
	text := sel.Find("h4").First().Text()
	if text == "" {
		text = sel.Text()
	}
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return strings.TrimSpace(line)
}

// parseRaceLink pulls a race time and race number out of a race link's
// inline text. Unparseable fields degrade to Unknown; results links often
// carry the time as bare text, so results mode falls back to the link's
// visible text before giving up. Never fatal.
func parseRaceLink(sel *goquery.Selection, textFallback bool) (raceTime, raceNumber string) {
	raceTime = strings.TrimSpace(sel.Find("strong").First().Text())
	if raceTime == "" && textFallback {
		line, _, _ := strings.Cut(strings.TrimSpace(sel.Text()), "\n")
		raceTime = strings.TrimSpace(line)
	}
	if raceTime == "" {
		raceTime = Unknown
	}

	raceNumber = Unknown
	if m := raceNumberPattern.FindStringSubmatch(sel.Find("h4").First().Text()); m != nil {
		raceNumber = m[1]
	}
	return raceTime, raceNumber
}
