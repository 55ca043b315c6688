package crawl

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	racesTotal        *prometheus.CounterVec
	cacheBustsTotal   *prometheus.CounterVec
	staleRetriesTotal prometheus.Counter
	runnersTotal      prometheus.Counter

	metricsOnce sync.Once
)

func initMetrics() {
	metricsOnce.Do(func() {
		racesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greyhound_races_total",
				Help: "Race targets processed, labeled by terminal outcome.",
			},
			[]string{"outcome"},
		)
		cacheBustsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greyhound_cache_busts_total",
				Help: "Cache bust operations performed, labeled by kind.",
			},
			[]string{"kind"},
		)
		staleRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "greyhound_stale_retries_total",
				Help: "Races re-fetched after the staleness heuristic fired.",
			},
		)
		runnersTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "greyhound_runners_total",
				Help: "Runner records accepted into crawl results.",
			},
		)
	})
}

func observeRace(outcome string) {
	initMetrics()
	racesTotal.WithLabelValues(outcome).Inc()
}

func observeCacheBust(kind string) {
	initMetrics()
	cacheBustsTotal.WithLabelValues(kind).Inc()
}

func observeStaleRetry() {
	initMetrics()
	staleRetriesTotal.Inc()
}

func observeRunners(n int) {
	initMetrics()
	runnersTotal.Add(float64(n))
}
