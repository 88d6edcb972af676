package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "website_analysis"

// PipelineMetrics holds the Prometheus collectors for ingestion, enrichment and the location database.
// All methods are safe to call on a nil receiver so components can run without instrumentation.
type PipelineMetrics struct {
	LinesTotal         *prometheus.CounterVec
	TimestampFallbacks prometheus.Counter
	LookupsTotal       *prometheus.CounterVec
	CacheEntries       prometheus.Gauge
	DatabaseSwaps      prometheus.Counter
	DownloadsTotal     *prometheus.CounterVec
	PassesTotal        *prometheus.CounterVec
	PassDuration       prometheus.Histogram
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		LinesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "lines_total",
			Help:      "Total number of log lines read by parse result.",
		}, []string{"result"}), // result: parsed, rejected
		TimestampFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "timestamp_fallbacks_total",
			Help:      "Total number of records whose timestamp could not be parsed and fell back to ingestion time.",
		}),
		LookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geo",
			Name:      "lookups_total",
			Help:      "Total number of location lookups by outcome.",
		}, []string{"result"}), // result: cache_hit, resolved, unknown, unavailable, malformed
		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "geo",
			Name:      "cache_entries",
			Help:      "Current number of entries in the location cache.",
		}),
		DatabaseSwaps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geo",
			Name:      "database_swaps_total",
			Help:      "Total number of times the active location database was replaced.",
		}),
		DownloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geo",
			Name:      "downloads_total",
			Help:      "Total number of location database downloads by edition and result.",
		}, []string{"edition", "result"}), // result: success, failure, not_modified
		PassesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "passes_total",
			Help:      "Total number of ingestion passes by result.",
		}, []string{"result"}), // result: ok, no_data, error
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "pass_duration_seconds",
			Help:      "Duration of full ingestion passes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

// RegisterDBStats exposes connection pool statistics of the SQLite store
func RegisterDBStats(reg prometheus.Registerer, db *sql.DB) error {
	return reg.Register(collectors.NewDBStatsCollector(db, "website_analysis"))
}

func (m *PipelineMetrics) ObserveLine(parsed bool) {
	if m == nil {
		return
	}
	if parsed {
		m.LinesTotal.WithLabelValues("parsed").Inc()
		return
	}
	m.LinesTotal.WithLabelValues("rejected").Inc()
}

func (m *PipelineMetrics) ObserveTimestampFallback() {
	if m == nil {
		return
	}
	m.TimestampFallbacks.Inc()
}

func (m *PipelineMetrics) ObserveLookup(result string) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

func (m *PipelineMetrics) ObserveSwap() {
	if m == nil {
		return
	}
	m.DatabaseSwaps.Inc()
}

func (m *PipelineMetrics) ObserveDownload(edition, result string) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(edition, result).Inc()
}

func (m *PipelineMetrics) ObservePass(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PassesTotal.WithLabelValues(result).Inc()
	m.PassDuration.Observe(elapsed.Seconds())
}
