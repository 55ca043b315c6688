package crawl

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// fakeBrowser serves canned HTML keyed by URL (query string ignored).
type fakeBrowser struct {
	pages       map[string]string
	failURLs    []string // substrings whose navigation fails
	current     string
	navigations []string
	refreshes   int
	sourceFn    func(current string, refreshes int) string
}

func (b *fakeBrowser) Navigate(_ context.Context, url string) error {
	b.navigations = append(b.navigations, url)
	for _, frag := range b.failURLs {
		if strings.Contains(url, frag) {
			return errors.New("navigation failed")
		}
	}
	b.current = url
	return nil
}

func (b *fakeBrowser) PageSource(context.Context) (string, error) {
	if b.sourceFn != nil {
		return b.sourceFn(b.current, b.refreshes), nil
	}
	key, _, _ := strings.Cut(b.current, "?")
	if page, ok := b.pages[key]; ok {
		return page, nil
	}
	return "<html></html>", nil
}

func (b *fakeBrowser) CurrentURL(context.Context) (string, error) {
	return b.current, nil
}

func (b *fakeBrowser) Refresh(context.Context) error {
	b.refreshes++
	return nil
}

// fakeBuster counts busts without touching any browser.
type fakeBuster struct {
	aggressive int
	light      int
}

func (f *fakeBuster) Aggressive(context.Context) { f.aggressive++ }
func (f *fakeBuster) Light(context.Context)      { f.light++ }
func (f *fakeBuster) Count() int                 { return f.aggressive + f.light }

// fakeClock advances instantly on Sleep so tests never wait.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 9, 5, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

// scriptedExtractor returns queued responses in order, then nothing.
type scriptedExtractor struct {
	responses [][]RunnerRecord
	calls     int
}

func (s *scriptedExtractor) Extract(*goquery.Document, RaceTarget) []RunnerRecord {
	s.calls++
	if len(s.responses) == 0 {
		return nil
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next
}

func runners(track, race string, dogs ...string) []RunnerRecord {
	recs := make([]RunnerRecord, 0, len(dogs))
	for _, dog := range dogs {
		recs = append(recs, RunnerRecord{
			Track:      track,
			RaceNumber: race,
			RaceTime:   "11:00",
			Trap:       "1",
			DogName:    dog,
		})
	}
	return recs
}

const cardPage = `<html><body><div id="sortContainer"></div></body></html>`
