// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Feed and reconciliation metrics
	FeedRequests      *prometheus.CounterVec
	FeedRowsFetched   *prometheus.CounterVec
	SwapsImported     prometheus.Counter
	ReconcileWindows  *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram
	WatermarkLag      prometheus.Gauge
	PricesCollected   prometheus.Counter
	BlocksBackfilled  *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Aggregation metrics
	PipelineRunsTotal  *prometheus.CounterVec
	PipelineDuration   *prometheus.HistogramVec
	StageItems         *prometheus.CounterVec
	WalletErrors       prometheus.Counter
	StatisticsUpserted prometheus.Counter
	RelatedSearches    *prometheus.CounterVec
	RelatedDuration    prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "wallet_analytics"
	}
	f := promauto.With(reg)

	return &Metrics{
		FeedRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "requests_total",
			Help:      "Swap feed query executions by feed and outcome",
		}, []string{"feed", "status"}),
		FeedRowsFetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "rows_fetched_total",
			Help:      "Raw swap records received from each feed",
		}, []string{"feed"}),
		SwapsImported: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "swaps_imported_total",
			Help:      "Total number of swaps newly written by the importer",
		}),
		ReconcileWindows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "windows_total",
			Help:      "Processed watermark windows by outcome",
		}, []string{"status"}),
		ReconcileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "window_duration_seconds",
			Help:      "Time spent fetching, reconciling and importing one window",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		WatermarkLag: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "watermark_lag_seconds",
			Help:      "Distance between now and the parsed-until watermark",
		}),
		PricesCollected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "candles_stored_total",
			Help:      "Minute prices newly stored",
		}),
		BlocksBackfilled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blockfill",
			Name:      "transactions_total",
			Help:      "Transactions looked up for block backfill by outcome",
		}, []string{"status"}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		PipelineRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "runs_total",
			Help:      "Total number of aggregation runs by job and status",
		}, []string{"job", "status"}),
		PipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "duration_seconds",
			Help:      "Aggregation run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"job"}),
		StageItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "stage_items_total",
			Help:      "Items passed through each pipeline stage",
		}, []string{"stage"}),
		WalletErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "wallet_errors_total",
			Help:      "Wallets skipped because recomputation failed",
		}),
		StatisticsUpserted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "statistics_upserted_total",
			Help:      "Wallet statistic rows written",
		}),
		RelatedSearches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "related",
			Name:      "searches_total",
			Help:      "Related-wallet searches by outcome",
		}, []string{"status"}),
		RelatedDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "related",
			Name:      "search_duration_seconds",
			Help:      "Related-wallet search duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of the last successful run per job",
		}, []string{"job"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordFeedRequest records one feed query execution.
func RecordFeedRequest(feed, status string, rows int) {
	DefaultMetrics.FeedRequests.WithLabelValues(feed, status).Inc()
	if rows > 0 {
		DefaultMetrics.FeedRowsFetched.WithLabelValues(feed).Add(float64(rows))
	}
}

// RecordWindow records the outcome of one reconciliation window.
func RecordWindow(status string, imported int, d time.Duration) {
	DefaultMetrics.ReconcileWindows.WithLabelValues(status).Inc()
	DefaultMetrics.ReconcileDuration.Observe(d.Seconds())
	DefaultMetrics.SwapsImported.Add(float64(imported))
}

// UpdateWatermarkLag sets the watermark lag gauge.
func UpdateWatermarkLag(parsedUntil, now time.Time) {
	DefaultMetrics.WatermarkLag.Set(now.Sub(parsedUntil).Seconds())
}

// RecordPricesCollected adds newly stored prices.
func RecordPricesCollected(n int) {
	DefaultMetrics.PricesCollected.Add(float64(n))
}

// RecordBlockfill records one transaction lookup.
func RecordBlockfill(status string) {
	DefaultMetrics.BlocksBackfilled.WithLabelValues(status).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordStageItems counts items leaving a pipeline stage.
func RecordStageItems(stage string, n int) {
	DefaultMetrics.StageItems.WithLabelValues(stage).Add(float64(n))
}

// RecordWalletError counts a wallet dropped from a batch.
func RecordWalletError() {
	DefaultMetrics.WalletErrors.Inc()
}

// RecordStatisticsUpserted counts written statistic rows.
func RecordStatisticsUpserted(n int) {
	DefaultMetrics.StatisticsUpserted.Add(float64(n))
}

// RecordRelatedSearch records a related-wallet search.
func RecordRelatedSearch(status string, d time.Duration) {
	DefaultMetrics.RelatedSearches.WithLabelValues(status).Inc()
	DefaultMetrics.RelatedDuration.Observe(d.Seconds())
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPipelineRun records an aggregation job run.
func RecordPipelineRun(job, status string, d time.Duration) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(job, status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(job).Observe(d.Seconds())
	if status == StatusOK {
		DefaultMetrics.LastSuccessfulRun.WithLabelValues(job).SetToCurrentTime()
	}
}

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusEmpty = "empty"
)
