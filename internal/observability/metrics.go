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
	// Ranking metrics
	RankingRuns        *prometheus.CounterVec
	RankingDuration    prometheus.Histogram
	RankedTokens       *prometheus.GaugeVec
	RankingLastSuccess prometheus.Gauge

	// Aggregation metrics
	AggregationRequests *prometheus.CounterVec
	AggregationDuration *prometheus.HistogramVec
	CacheLookups        *prometheus.CounterVec

	// Universe metrics
	UniverseSyncs    *prometheus.CounterVec
	UniverseUpserted prometheus.Gauge

	// Ingestion metrics
	IngestMessages *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "onchain_intel"
	}
	factory := promauto.With(reg)

	return &Metrics{
		RankingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "runs_total",
			Help:      "Total number of ranking runs by status",
		}, []string{"status"}),
		RankingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "run_duration_seconds",
			Help:      "Duration of ranking runs including persistence",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		RankedTokens: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "tokens",
			Help:      "Tokens per bucket in the latest ranking run",
		}, []string{"bucket"}),
		RankingLastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of the last successful ranking run",
		}),
		AggregationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "requests_total",
			Help:      "Entity aggregation requests by operation and result source",
		}, []string{"operation", "source"}),
		AggregationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "duration_seconds",
			Help:      "Entity aggregation latency by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Aggregate cache lookups by result",
		}, []string{"result"}),
		UniverseSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "universe",
			Name:      "syncs_total",
			Help:      "Token universe synchronisations by status",
		}, []string{"status"}),
		UniverseUpserted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "universe",
			Name:      "upserted_tokens",
			Help:      "Tokens upserted by the last universe sync",
		}),
		IngestMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Transfer ingestion messages by status",
		}, []string{"status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordRankingRun records a ranking run and its bucket distribution.
func RecordRankingRun(status string, d time.Duration, buy, watch, sell int) {
	DefaultMetrics.RankingRuns.WithLabelValues(status).Inc()
	DefaultMetrics.RankingDuration.Observe(d.Seconds())
	if status != "success" {
		return
	}
	DefaultMetrics.RankedTokens.WithLabelValues("BUY").Set(float64(buy))
	DefaultMetrics.RankedTokens.WithLabelValues("WATCH").Set(float64(watch))
	DefaultMetrics.RankedTokens.WithLabelValues("SELL").Set(float64(sell))
	DefaultMetrics.RankingLastSuccess.SetToCurrentTime()
}

// RecordAggregation records one entity aggregation.
func RecordAggregation(operation, source string, d time.Duration) {
	DefaultMetrics.AggregationRequests.WithLabelValues(operation, source).Inc()
	DefaultMetrics.AggregationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheLookups.WithLabelValues(result).Inc()
}

// RecordUniverseSync records a universe synchronisation.
func RecordUniverseSync(status string, upserted int) {
	DefaultMetrics.UniverseSyncs.WithLabelValues(status).Inc()
	if status == "success" {
		DefaultMetrics.UniverseUpserted.Set(float64(upserted))
	}
}

// RecordIngestMessage records a consumed ingestion message.
func RecordIngestMessage(status string) {
	DefaultMetrics.IngestMessages.WithLabelValues(status).Inc()
}
