package dogstats

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testStatsURL = "https://stats.example.test/complete_runner_stats.php"

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

// stubParser records parsed keys and returns a minimal stats row.
type stubParser struct {
	mu   sync.Mutex
	keys []string
}

func (p *stubParser) Parse(_ string, key string) (DogStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return DogStats{Key: key, Runs: 1}, nil
}

func testConfig() Config {
	return Config{
		BaseURL:       testStatsURL,
		Timeout:       10 * time.Second,
		BaseDelay:     2 * time.Second,
		MaxDelay:      10 * time.Second,
		MaxAttempts:   3,
		BackoffFactor: 2.0,
		DelayGrowth:   1.5,
	}
}

func newTestFetcher(t *testing.T, cfg Config) (*Fetcher, *fakeClock, *stubParser) {
	t.Helper()
	clk := newFakeClock()
	parser := &stubParser{}
	f := New(parser, clk, zap.NewNop(), cfg)
	httpmock.ActivateNonDefault(f.client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return f, clk, parser
}

func TestFetchSequentialPacesBetweenKeys(t *testing.T) {
	f, clk, parser := newTestFetcher(t, testConfig())
	httpmock.RegisterResponder(http.MethodGet, testStatsURL,
		httpmock.NewStringResponder(http.StatusOK, "<html><table></table></html>"))

	res := f.Fetch(context.Background(), []string{"Fast Fern", "Swift Sal"}, 1)

	require.Len(t, res.Stats, 2)
	require.Empty(t, res.Failed)
	require.ElementsMatch(t, []string{"Fast Fern", "Swift Sal"}, parser.keys)

	// One pacing sleep between the two keys, none after the last: base
	// delay plus 0.5s-1.5s of jitter.
	require.Len(t, clk.slept, 1)
	require.GreaterOrEqual(t, clk.slept[0], 2500*time.Millisecond)
	require.LessOrEqual(t, clk.slept[0], 3500*time.Millisecond)
}

func TestFetchEncodesDogNameInQuery(t *testing.T) {
	f, _, _ := newTestFetcher(t, testConfig())
	var gotQuery string
	httpmock.RegisterResponder(http.MethodGet, testStatsURL,
		func(req *http.Request) (*http.Response, error) {
			gotQuery = req.URL.RawQuery
			return httpmock.NewStringResponse(http.StatusOK, "<html></html>"), nil
		})

	f.Fetch(context.Background(), []string{"Fast Fern"}, 1)

	require.Contains(t, gotQuery, "dog=Fast+Fern")
	require.Contains(t, gotQuery, "track=")
	require.Contains(t, gotQuery, "grade=")
}

func TestFetchNotFoundIsTerminalAfterOneAttempt(t *testing.T) {
	f, clk, _ := newTestFetcher(t, testConfig())
	httpmock.RegisterResponder(http.MethodGet, testStatsURL,
		httpmock.NewStringResponder(http.StatusNotFound, "no such dog"))

	res := f.Fetch(context.Background(), []string{"Fast Fern", "Swift Sal"}, 1)

	// Not-found is a terminal outcome, not a failure: both keys resolve,
	// with exactly one request each and no retry waits.
	require.Empty(t, res.Failed)
	require.Len(t, res.Stats, 2)
	require.True(t, res.Stats["Fast Fern"].NotFound)
	require.True(t, res.Stats["Swift Sal"].NotFound)
	require.Equal(t, 2, httpmock.GetTotalCallCount())
	// The only sleep is the pacing between keys.
	require.Len(t, clk.slept, 1)
}

func TestForbiddenRetriesGrowSharedDelay(t *testing.T) {
	f, clk, _ := newTestFetcher(t, testConfig())
	calls := 0
	httpmock.RegisterResponder(http.MethodGet, testStatsURL,
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls <= 2 {
				return httpmock.NewStringResponse(http.StatusForbidden, "blocked"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, "<html></html>"), nil
		})

	res := f.Fetch(context.Background(), []string{"Fast Fern"}, 1)

	require.Len(t, res.Stats, 1)
	require.Equal(t, 3, calls)

	// Each 403 grows the shared base delay by 1.5x before the wait is
	// computed: 2s -> 3s (wait 3s*2), 3s -> 4.5s (wait 4.5s*3).
	require.Equal(t, []time.Duration{6 * time.Second, 13500 * time.Millisecond}, clk.slept)
	require.Equal(t, 4500*time.Millisecond, f.currentBaseDelay())
	require.Contains(t, userAgents, f.currentUserAgent())
}

func TestSharedDelayIsCapped(t *testing.T) {
	cfg := testConfig()
	cfg.BaseDelay = 8 * time.Second
	f, _, _ := newTestFetcher(t, cfg)
	httpmock.RegisterResponder(http.MethodGet, testStatsURL,
		httpmock.NewStringResponder(http.StatusForbidden, "blocked"))

	f.Fetch(context.Background(), []string{"Fast Fern"}, 1)

	require.Equal(t, 10*time.Second, f.currentBaseDelay())
}

func TestThrottledBacksOffExponentiallyWithJitter(t *testing.T) {
	f, clk, _ := newTestFetcher(t, testConfig())
	calls := 0
	httpmock.RegisterResponder(http.MethodGet, testStatsURL,
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls <= 2 {
				return httpmock.NewStringResponse(http.StatusTooManyRequests, "slow down"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, "<html></html>"), nil
		})

	res := f.Fetch(context.Background(), []string{"Fast Fern"}, 1)

	require.Len(t, res.Stats, 1)
	require.Len(t, clk.slept, 2)
	// base * factor^(attempt+1) plus 1-3s of jitter.
	require.GreaterOrEqual(t, clk.slept[0], 5*time.Second)
	require.LessOrEqual(t, clk.slept[0], 7*time.Second)
	require.GreaterOrEqual(t, clk.slept[1], 9*time.Second)
	require.LessOrEqual(t, clk.slept[1], 11*time.Second)
	// Throttling does not grow the shared base delay.
	require.Equal(t, 2*time.Second, f.currentBaseDelay())
}

func TestAttemptsExhaustedReportsFailure(t *testing.T) {
	f, clk, _ := newTestFetcher(t, testConfig())
	httpmock.RegisterResponder(http.MethodGet, testStatsURL,
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	res := f.Fetch(context.Background(), []string{"Fast Fern"}, 1)

	require.Empty(t, res.Stats)
	require.Equal(t, []string{"Fast Fern"}, res.Failed)
	require.Equal(t, 3, httpmock.GetTotalCallCount())
	// Ordinary errors wait base*(attempt+1) between attempts.
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, clk.slept)
}

func TestFetchPooledCollectsUnorderedResults(t *testing.T) {
	cfg := testConfig()
	cfg.BaseDelay = time.Millisecond // keep the limiter from pacing the test
	f, _, parser := newTestFetcher(t, cfg)
	httpmock.RegisterResponder(http.MethodGet, testStatsURL,
		httpmock.NewStringResponder(http.StatusOK, "<html></html>"))

	keys := []string{"A", "B", "C", "D", "E"}
	res := f.Fetch(context.Background(), keys, 3)

	require.Len(t, res.Stats, 5)
	require.Empty(t, res.Failed)
	require.ElementsMatch(t, keys, parser.keys)
}

func TestFetchEmptyKeys(t *testing.T) {
	f, _, _ := newTestFetcher(t, testConfig())

	res := f.Fetch(context.Background(), nil, 1)

	require.Empty(t, res.Stats)
	require.Empty(t, res.Failed)
	require.Equal(t, 0, httpmock.GetTotalCallCount())
}
