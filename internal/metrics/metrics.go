// Package metrics exposes the operational counters/gauges a deployed
// instance of this agent scrapes: sync status transitions, executor fill
// counts, and backtest throughput. These are process-health metrics, not
// trading-strategy analytics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncStatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lnm_sync_status_transitions_total",
		Help: "Count of sync process status transitions, by resulting status.",
	}, []string{"status"})

	LiveStatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lnm_live_status_transitions_total",
		Help: "Count of live process supervisor status transitions, by resulting status.",
	}, []string{"status"})

	ExecutorFills = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lnm_executor_fills_total",
		Help: "Count of trade executor opens/closes, by side and kind.",
	}, []string{"side", "kind"})

	ExecutorBalanceSats = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lnm_executor_balance_sats",
		Help: "Latest known account balance in satoshis.",
	})

	BacktestCandlesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lnm_backtest_candles_processed_total",
		Help: "Count of candles consumed by the backtest engine.",
	})

	BacktestRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lnm_backtest_run_duration_seconds",
		Help:    "Wall-clock duration of completed backtest runs.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(
		SyncStatusTransitions,
		LiveStatusTransitions,
		ExecutorFills,
		ExecutorBalanceSats,
		BacktestCandlesProcessed,
		BacktestRunDuration,
	)
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
