package dogstats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	fetchesTotal *prometheus.CounterVec
	retriesTotal prometheus.Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "greyhound_stat_fetches_total",
			Help: "Terminal dog statistics fetch outcomes.",
		}, []string{"outcome"})
		retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "greyhound_stat_retries_total",
			Help: "Dog statistics fetch attempts that were retried.",
		})
	})
}

func observeFetch(outcome string) {
	initMetrics()
	fetchesTotal.WithLabelValues(outcome).Inc()
}

func observeRetry() {
	initMetrics()
	retriesTotal.Inc()
}
