package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/clock"
)

const (
	clearAllStorageScript = "window.localStorage.clear(); window.sessionStorage.clear();"

	clearSessionStorageScript = "window.sessionStorage.clear();"

	// Drops only the fragment caches keyed by race/card namespaces; other
	// entries are left alone so the SPA does not rehydrate from scratch.
	clearRaceCachesScript = `
if (window.caches) {
	caches.keys().then(function(names) {
		names.forEach(function(name) {
			if (name.includes('race') || name.includes('card')) {
				caches.delete(name);
			}
		});
	});
}`
)

// BustConfig sets the settle delays after each kind of cache bust.
type BustConfig struct {
	AggressiveSettle time.Duration
	LightSettle      time.Duration
}

// Buster invalidates the SPA's client-side caches. Both operations are
// best-effort: they reduce stale-read probability, they do not guarantee
// freshness, and nothing they do can abort a crawl.
type Buster struct {
	session *Session
	clk     clock.Clock
	logger  *zap.Logger
	cfg     BustConfig
	count   int
}

// NewBuster creates a Buster bound to the given session.
func NewBuster(session *Session, clk clock.Clock, logger *zap.Logger, cfg BustConfig) *Buster {
	if cfg.AggressiveSettle <= 0 {
		cfg.AggressiveSettle = 8 * time.Second
	}
	if cfg.LightSettle <= 0 {
		cfg.LightSettle = 2 * time.Second
	}
	return &Buster{session: session, clk: clk, logger: logger, cfg: cfg}
}

// Aggressive clears cookies and all client-side storage, forces a hard
// reload, and waits for the SPA to rehydrate. Used on track switches.
func (b *Buster) Aggressive(ctx context.Context) {
	b.count++
	err := b.session.run(ctx, b.session.cfg.NavTimeout,
		network.ClearBrowserCookies(),
		chromedp.Evaluate(clearAllStorageScript, nil),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return page.Reload().WithIgnoreCache(true).Do(ctx)
		}),
	)
	if err != nil {
		b.logger.Debug("aggressive cache bust incomplete", zap.Error(err))
	}
	b.clk.Sleep(ctx, b.cfg.AggressiveSettle)
}

// Light clears session storage and race/card-scoped cache entries only,
// with a short settle. Used periodically between same-track races.
func (b *Buster) Light(ctx context.Context) {
	b.count++
	err := b.session.run(ctx, b.session.cfg.NavTimeout,
		chromedp.Evaluate(clearSessionStorageScript, nil),
		chromedp.Evaluate(clearRaceCachesScript, nil),
	)
	if err != nil {
		b.logger.Debug("light cache bust incomplete", zap.Error(err))
	}
	b.clk.Sleep(ctx, b.cfg.LightSettle)
}

// Count reports how many busts (either kind) have been performed.
func (b *Buster) Count() int {
	return b.count
}
