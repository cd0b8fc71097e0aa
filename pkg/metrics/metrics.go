package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wafflemaker_queue_depth",
			Help: "Number of jobs currently enqueued across all services",
		},
	)

	ActiveServiceActors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wafflemaker_active_service_actors",
			Help: "Number of service actors currently holding a mailbox",
		},
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wafflemaker_jobs_enqueued_total",
			Help: "Total number of jobs enqueued by kind",
		},
		[]string{"kind"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wafflemaker_job_duration_seconds",
			Help:    "Time taken to run a job to a safe resting point, by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Reconciliation outcome metrics
	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wafflemaker_reconciliations_total",
			Help: "Total number of Reconcile jobs by outcome (committed, rolled_back)",
		},
		[]string{"outcome"},
	)

	HealthProbeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wafflemaker_health_probe_duration_seconds",
			Help:    "Time taken for a candidate container to become healthy or time out",
			Buckets: []float64{1, 2, 4, 8, 15, 30, 60, 90, 120},
		},
	)

	DeletesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wafflemaker_deletes_total",
			Help: "Total number of Delete jobs completed",
		},
	)

	// Secret/lease metrics
	LeasesTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wafflemaker_leases_tracked",
			Help: "Number of dynamic credential leases currently tracked by the LeaseManager",
		},
	)

	LeaseRenewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wafflemaker_lease_renewals_total",
			Help: "Total number of lease renewal attempts by outcome (renewed, failed)",
		},
		[]string{"outcome"},
	)

	LeaseRevocationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wafflemaker_lease_revocations_total",
			Help: "Total number of leases revoked",
		},
	)

	SecretResolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wafflemaker_secret_resolve_duration_seconds",
			Help:    "Time taken to resolve a service's secrets and dependencies",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DNS metrics
	DNSUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wafflemaker_dns_upserts_total",
			Help: "Total number of DNS record upserts by outcome",
		},
		[]string{"outcome"},
	)

	DNSDeletesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wafflemaker_dns_deletes_total",
			Help: "Total number of DNS record deletes by outcome",
		},
		[]string{"outcome"},
	)

	// Planner metrics
	PlansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wafflemaker_plans_total",
			Help: "Total number of plans computed from a source push",
		},
	)

	PlanJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wafflemaker_plan_jobs_total",
			Help: "Total number of jobs emitted by the Planner, by kind",
		},
		[]string{"kind"},
	)

	// Management/webhook API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wafflemaker_api_requests_total",
			Help: "Total number of management API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wafflemaker_api_request_duration_seconds",
			Help:    "Management API request duration in seconds, by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	WebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wafflemaker_webhooks_total",
			Help: "Total number of webhook deliveries received by source and outcome",
		},
		[]string{"source", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		QueueDepth,
		ActiveServiceActors,
		JobsEnqueuedTotal,
		JobDuration,
		ReconciliationsTotal,
		HealthProbeDuration,
		DeletesTotal,
		LeasesTracked,
		LeaseRenewalsTotal,
		LeaseRevocationsTotal,
		SecretResolveDuration,
		DNSUpsertsTotal,
		DNSDeletesTotal,
		PlansTotal,
		PlanJobsTotal,
		APIRequestsTotal,
		APIRequestDuration,
		WebhooksTotal,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
