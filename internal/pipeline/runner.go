package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/browser"
	"github.com/kmorey/greyhound-pipeline/internal/clock"
	"github.com/kmorey/greyhound-pipeline/internal/config"
	"github.com/kmorey/greyhound-pipeline/internal/crawl"
	"github.com/kmorey/greyhound-pipeline/internal/extract"
)

// CrawlRunner implements CardSource against a real browser. Each
// invocation starts a fresh session and closes it when the crawl ends,
// whatever way it ends.
type CrawlRunner struct {
	cfg    config.Config
	clk    clock.Clock
	logger *zap.Logger
}

// NewCrawlRunner builds a crawl runner from pipeline configuration.
func NewCrawlRunner(cfg config.Config, clk clock.Clock, logger *zap.Logger) *CrawlRunner {
	return &CrawlRunner{cfg: cfg, clk: clk, logger: logger}
}

// RunToday crawls today's race cards.
func (r *CrawlRunner) RunToday(ctx context.Context) ([]crawl.RunnerRecord, error) {
	return r.withLoop(func(loop *crawl.Loop) ([]crawl.RunnerRecord, error) {
		return loop.RunToday(ctx)
	})
}

// RunHistorical crawls results pages across the date range.
func (r *CrawlRunner) RunHistorical(ctx context.Context, dates crawl.DateRange) ([]crawl.RunnerRecord, error) {
	return r.withLoop(func(loop *crawl.Loop) ([]crawl.RunnerRecord, error) {
		return loop.RunHistorical(ctx, dates)
	})
}

func (r *CrawlRunner) withLoop(fn func(*crawl.Loop) ([]crawl.RunnerRecord, error)) ([]crawl.RunnerRecord, error) {
	session, err := browser.New(browser.Config{
		Headless:       r.cfg.Browser.Headless,
		UserAgent:      r.cfg.Browser.UserAgent,
		WindowWidth:    r.cfg.Browser.WindowWidth,
		WindowHeight:   r.cfg.Browser.WindowHeight,
		NavTimeout:     r.cfg.Browser.NavTimeout,
		ReadyTimeout:   r.cfg.Browser.ReadyTimeout,
		ReadySelector:  r.cfg.Browser.ReadySelector,
		DisableImages:  r.cfg.Browser.DisableImages,
		DisablePlugins: r.cfg.Browser.DisablePlugins,
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("start browser session: %w", err)
	}
	defer session.Close()

	buster := browser.NewBuster(session, r.clk, r.logger, browser.BustConfig{
		AggressiveSettle: r.cfg.Crawl.AggressiveSettle,
		LightSettle:      r.cfg.Crawl.LightSettle,
	})
	classifier := crawl.NewClassifier(r.cfg.Crawl.CardSelector, r.cfg.Crawl.ResultsSelector)
	enum := crawl.NewEnumerator(session, r.clk, r.logger, r.cfg.Crawl.BaseURL, r.cfg.Crawl.HydrationWait)
	loop := crawl.NewLoop(
		session,
		buster,
		classifier,
		enum,
		extract.NewCardExtractor(r.logger),
		extract.NewResultsExtractor(r.logger),
		r.clk,
		r.logger,
		crawl.Config{
			BaseURL:          r.cfg.Crawl.BaseURL,
			CacheBustEvery:   r.cfg.Crawl.CacheBustEvery,
			FreshURLEvery:    r.cfg.Crawl.FreshURLEvery,
			StaleRetryWait:   r.cfg.Crawl.StaleRetryWait,
			DedupWindow:      r.cfg.Crawl.DedupWindow,
			OverlapThreshold: r.cfg.Crawl.OverlapThreshold,
		},
	)
	return fn(loop)
}
