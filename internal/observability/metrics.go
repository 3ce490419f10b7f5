// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	CandidatesObserved *prometheus.CounterVec // by category, source
	Duplicates         *prometheus.CounterVec // by category
	PolicyRejections   *prometheus.CounterVec // by category, reason code
	RecordsStored      *prometheus.CounterVec // by category
	EnrichmentFailures *prometheus.CounterVec // by kind (metadata, quote)

	// Dispatch metrics
	PublishAttempts  *prometheus.CounterVec // by outcome (success, transient, permanent)
	RateLimitedSkips prometheus.Counter
	FollowupActions  prometheus.Counter

	// Scheduler metrics
	AdapterRuns     *prometheus.CounterVec // by adapter, result
	DroppedTicks    *prometheus.CounterVec // by adapter
	BreakerTripped  prometheus.Gauge
	ConsecutiveErrs prometheus.Gauge

	// Poll metrics
	PollLatency *prometheus.HistogramVec // by adapter

	// Health metrics
	LastSuccessfulPoll     *prometheus.GaugeVec // by adapter
	LastSuccessfulDispatch prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered
// on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers all metrics on the given registerer. Tests
// use this with a fresh registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "ens_market_bot"
	}
	factory := promauto.With(reg)

	return &Metrics{
		CandidatesObserved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "candidates_observed_total",
			Help:      "Total number of candidates handed to the pipeline",
		}, []string{"category", "source"}),
		Duplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duplicates_total",
			Help:      "Total number of candidates rejected as already seen",
		}, []string{"category"}),
		PolicyRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "policy_rejections_total",
			Help:      "Total number of candidates rejected by filter policy, by reason",
		}, []string{"category", "reason"}),
		RecordsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "records_stored_total",
			Help:      "Total number of records stored as unposted",
		}, []string{"category"}),
		EnrichmentFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "enrichment_failures_total",
			Help:      "Total number of degraded enrichments, by kind",
		}, []string{"kind"}),
		PublishAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "publish_attempts_total",
			Help:      "Total number of publish attempts, by outcome",
		}, []string{"outcome"}),
		RateLimitedSkips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "rate_limited_skips_total",
			Help:      "Total number of dispatch passes skipped by the rolling window limiter",
		}),
		FollowupActions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "followup_actions_total",
			Help:      "Total number of follow-up actions triggered by posted transitions",
		}),
		AdapterRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "adapter_runs_total",
			Help:      "Total number of scheduled adapter runs, by result",
		}, []string{"adapter", "result"}),
		DroppedTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "dropped_ticks_total",
			Help:      "Total number of ticks dropped because the previous run was still in flight",
		}, []string{"adapter"}),
		BreakerTripped: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "breaker_tripped",
			Help:      "1 when the consecutive-error circuit breaker has halted scheduling",
		}),
		ConsecutiveErrs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "consecutive_errors",
			Help:      "Current global consecutive adapter error count",
		}),
		PollLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "poll_duration_seconds",
			Help:      "Duration of poll adapter runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"adapter"}),
		LastSuccessfulPoll: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_poll_timestamp_seconds",
			Help:      "Unix time of the last successful run per adapter",
		}, []string{"adapter"}),
		LastSuccessfulDispatch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_dispatch_timestamp_seconds",
			Help:      "Unix time of the last successful publish",
		}),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
