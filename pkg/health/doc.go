/*
Package health provides the HTTP, TCP, and Exec health checkers the
Reconciler's HealthProbe state polls, plus the Probe function that
implements the backoff/ceiling and no-healthcheck fallback rules a
service's health declaration resolves to.

# Checkers

	type Checker interface {
		Check(ctx context.Context) Result
		Type() CheckType
	}

HTTPChecker, TCPChecker, and ExecChecker each implement Checker with a
fluent builder for optional configuration:

	checker := health.NewHTTPChecker("http://10.0.0.5:8080/health").
		WithStatusRange(200, 299).
		WithTimeout(5 * time.Second)

The Reconciler builds one of these from a service's declared Health
spec, resolving the candidate container's address for the http and tcp
kinds when the spec doesn't pin one down explicitly.

# Probe

Probe drives a single HealthProbe: it polls checker on the fixed backoff
schedule (1s, 2s, 4s, 8s, 15s, 15s, ...) until healthy, the context is
cancelled, or 120s elapse. When a service declares no checker, Probe instead
polls a RunningProber once per second and requires three consecutive
running=true observations before calling the service healthy.
*/
package health
