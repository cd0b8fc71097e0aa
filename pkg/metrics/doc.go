/*
Package metrics defines and registers WaffleMaker's Prometheus metrics:
queue depth and job duration, reconciliation outcome and health-probe
duration, lease tracking and renewal, DNS upsert/delete outcome, plan
size, and management/webhook API request counters. All metrics are
package-level variables registered at init and exposed via Handler()
for an HTTP /metrics endpoint.

Timer is a small helper for timing an operation and recording its
duration to a histogram:

	timer := metrics.NewTimer()
	reconcile(job)
	timer.ObserveDurationVec(metrics.JobDuration, "reconcile")

HealthChecker (health.go) tracks named component health (registry,
secrets, runtime) independently of the Prometheus registry and backs
the /health, /ready, and /live HTTP handlers.
*/
package metrics
