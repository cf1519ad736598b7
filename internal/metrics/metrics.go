package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricPrefix = "energy_insights_"

var (
	// Read path.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "cache_hits_total",
		Help: "Aggregate query results served from cache",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "cache_misses_total",
		Help: "Aggregate queries that fell through to the rollup store",
	})
	StoreReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "store_reads_total",
		Help: "Rollup store reads by granularity",
	}, []string{"granularity"})

	// Alerting.
	AlertCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "alert_cycles_total",
		Help: "Completed alert polling cycles",
	})
	AlertsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "alerts_fired_total",
		Help: "Alert notifications dispatched",
	})
	AlertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "alerts_suppressed_total",
		Help: "Alert conditions suppressed by an active cooldown",
	})
	AlertRuleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "alert_rule_errors_total",
		Help: "Per-rule fetch or evaluation failures (isolated, non-fatal)",
	})
	NotifyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "notify_errors_total",
		Help: "Failed notification dispatches",
	})

	// HTTP surface.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricPrefix + "http_request_duration_seconds",
		Help:    "Read API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "code"})
)
