// Package browser owns the single headless Chrome session used for the
// race-card crawl, including the cache invalidation the target SPA needs.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the browser session.
type Config struct {
	Headless       bool
	UserAgent      string
	WindowWidth    int
	WindowHeight   int
	NavTimeout     time.Duration
	ReadyTimeout   time.Duration
	ReadySelector  string
	DisableImages  bool
	DisablePlugins bool
}

// Session wraps one live chromedp browser. It is not safe for concurrent
// use; the crawl loop drives it from a single goroutine.
type Session struct {
	cfg           Config
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// New starts the browser and warms it up. A startup failure is fatal for
// the whole crawl invocation.
func New(cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 25 * time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 3 * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if cfg.DisablePlugins {
		opts = append(opts, chromedp.Flag("disable-plugins", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	warmup := chromedp.ActionFunc(func(ctx context.Context) error {
		// The SPA fingerprints automation; hide the webdriver flag on
		// every document before its scripts run.
		_, err := page.AddScriptToEvaluateOnNewDocument(
			"Object.defineProperty(navigator, 'webdriver', {get: () => undefined})",
		).Do(ctx)
		return err
	})
	if err := chromedp.Run(browserCtx, warmup); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser warmup: %w", err)
	}

	return &Session{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close tears down the browser and its allocator. Safe to call once the
// crawl has finished, however it finished.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.browserCancel()
	s.allocCancel()
}

// Navigate loads url and blocks until the readiness selector is present or
// the readiness wait elapses. On timeout it reloads exactly once and waits
// again; a second timeout is not an error, the caller proceeds with
// whatever content is present.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.cfg.NavTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if s.waitReady(ctx) {
		return nil
	}
	s.logger.Debug("content not ready after navigation, refreshing once", zap.String("url", url))
	if err := s.Refresh(ctx); err != nil {
		s.logger.Debug("refresh after readiness timeout failed", zap.Error(err))
		return nil
	}
	s.waitReady(ctx)
	return nil
}

// Refresh reloads the current page.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.run(ctx, s.cfg.NavTimeout, chromedp.Reload()); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// PageSource returns the current DOM serialized as HTML.
func (s *Session) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.cfg.NavTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("page source: %w", err)
	}
	return html, nil
}

// CurrentURL returns the browser's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, s.cfg.NavTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("current url: %w", err)
	}
	return loc, nil
}

func (s *Session) waitReady(ctx context.Context) bool {
	if s.cfg.ReadySelector == "" {
		return true
	}
	err := s.run(ctx, s.cfg.ReadyTimeout, chromedp.WaitReady(s.cfg.ReadySelector, chromedp.ByQuery))
	return err == nil
}

func (s *Session) run(parent context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()

	stop := forwardCancel(parent, cancel)
	defer stop()

	return chromedp.Run(taskCtx, actions...)
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
