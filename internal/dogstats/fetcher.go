package dogstats

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kmorey/greyhound-pipeline/internal/clock"
)

// Config tunes the fetcher. BaseDelay is both the starting retry unit
// and the pacing interval between requests; it only ever grows within
// one fetcher's lifetime, up to MaxDelay.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxAttempts   int
	BackoffFactor float64
	DelayGrowth   float64
}

// Fetcher resolves dog statistics pages over HTTP with retry, backoff,
// and header rotation. Safe for use by a bounded pool of workers.
type Fetcher struct {
	client *resty.Client
	parser Parser
	clk    clock.Clock
	logger *zap.Logger
	cfg    Config
	policy Policy

	mu        sync.Mutex
	baseDelay time.Duration
	userAgent string
	rng       *rand.Rand
}

// New builds a fetcher around its own resty client.
func New(parser Parser, clk clock.Clock, logger *zap.Logger, cfg Config) *Fetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeaders(baselineHeaders())
	return &Fetcher{
		client:    client,
		parser:    parser,
		clk:       clk,
		logger:    logger,
		cfg:       cfg,
		policy:    Policy{MaxAttempts: cfg.MaxAttempts, BackoffFactor: cfg.BackoffFactor},
		baseDelay: cfg.BaseDelay,
		userAgent: userAgents[0],
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch resolves statistics for every key. Failures are collected per
// key, never fatal; an all-failed fetch is an empty result, not an
// error. With concurrency above one, completion order across keys is
// unspecified.
func (f *Fetcher) Fetch(ctx context.Context, keys []string, concurrency int) Result {
	res := Result{Stats: make(map[string]DogStats)}
	if len(keys) == 0 {
		return res
	}
	f.logger.Info("fetching dog statistics",
		zap.Int("dogs", len(keys)),
		zap.Int("concurrency", concurrency),
		zap.Duration("base_delay", f.currentBaseDelay()),
	)
	if concurrency <= 1 {
		f.fetchSequential(ctx, keys, &res)
	} else {
		f.fetchPooled(ctx, keys, concurrency, &res)
	}
	f.logger.Info("dog statistics fetched",
		zap.Int("resolved", len(res.Stats)),
		zap.Int("failed", len(res.Failed)),
	)
	return res
}

func (f *Fetcher) fetchSequential(ctx context.Context, keys []string, res *Result) {
	for i, key := range keys {
		stats, err := f.fetchOne(ctx, key)
		f.collect(res, key, stats, err)
		// Pace requests apart, with jitter; nothing to wait for after
		// the last key.
		if i < len(keys)-1 {
			f.clk.Sleep(ctx, f.currentBaseDelay()+f.jitter(500*time.Millisecond, 1500*time.Millisecond))
		}
	}
}

type keyResult struct {
	key   string
	stats DogStats
	err   error
}

func (f *Fetcher) fetchPooled(ctx context.Context, keys []string, concurrency int, res *Result) {
	tasks := make(chan string)
	results := make(chan keyResult)
	limiter := rate.NewLimiter(rate.Every(f.currentBaseDelay()), 1)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range tasks {
				if err := limiter.Wait(ctx); err != nil {
					results <- keyResult{key: key, err: err}
					continue
				}
				stats, err := f.fetchOne(ctx, key)
				results <- keyResult{key: key, stats: stats, err: err}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, key := range keys {
			select {
			case tasks <- key:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		f.collect(res, r.key, r.stats, r.err)
	}
}

func (f *Fetcher) collect(res *Result, key string, stats DogStats, err error) {
	if err != nil {
		res.Failed = append(res.Failed, key)
		f.logger.Warn("dog statistics failed", zap.String("dog", key), zap.Error(err))
		return
	}
	res.Stats[key] = stats
}

// fetchOne runs the retry loop for a single key. Success and not-found
// are terminal; everything else retries per the policy until attempts
// run out.
func (f *Fetcher) fetchOne(ctx context.Context, key string) (DogStats, error) {
	var lastOutcome Outcome
	for attempt := 0; attempt < f.cfg.MaxAttempts; attempt++ {
		resp, err := f.client.R().
			SetContext(ctx).
			SetHeader("User-Agent", f.currentUserAgent()).
			Get(f.statsURL(key))
		status := 0
		if err == nil {
			status = resp.StatusCode()
		}

		outcome := classify(status, err)
		lastOutcome = outcome
		switch outcome {
		case OutcomeOK:
			observeFetch("ok")
			return f.parser.Parse(resp.String(), key)
		case OutcomeNotFound:
			observeFetch("not_found")
			f.logger.Info("dog not found", zap.String("dog", key))
			return DogStats{Key: key, NotFound: true}, nil
		}

		if !f.policy.Retryable(outcome, attempt) {
			break
		}
		observeRetry()

		if outcome == OutcomeForbidden {
			f.escalate()
		}
		wait := f.policy.Wait(outcome, attempt, f.currentBaseDelay())
		if outcome == OutcomeThrottled {
			wait += f.jitter(time.Second, 3*time.Second)
		}
		f.logger.Warn("attempt failed, backing off",
			zap.String("dog", key),
			zap.Stringer("outcome", outcome),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
		)
		f.clk.Sleep(ctx, wait)
	}
	observeFetch(lastOutcome.String())
	return DogStats{}, fmt.Errorf("fetch stats for %s: %s after %d attempts", key, lastOutcome, f.cfg.MaxAttempts)
}

// escalate reacts to blocking: rotate the user agent and grow the shared
// base delay. The delay never shrinks; lost updates between workers are
// acceptable, it is a heuristic.
func (f *Fetcher) escalate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userAgent = userAgents[f.rng.Intn(len(userAgents))]
	grown := time.Duration(float64(f.baseDelay) * f.cfg.DelayGrowth)
	if grown > f.cfg.MaxDelay {
		grown = f.cfg.MaxDelay
	}
	if grown > f.baseDelay {
		f.baseDelay = grown
	}
}

func (f *Fetcher) currentBaseDelay() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseDelay
}

func (f *Fetcher) currentUserAgent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userAgent
}

func (f *Fetcher) jitter(min, max time.Duration) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return min + time.Duration(f.rng.Float64()*float64(max-min))
}

func (f *Fetcher) statsURL(key string) string {
	return f.cfg.BaseURL +
		"?dog=" + url.QueryEscape(key) +
		"&track=&pos=&trap=&grade=&distance="
}
