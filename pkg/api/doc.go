/*
Package api implements the bearer-token management HTTP API of §6: read
endpoints over the Registry (deployments, services, leases) and write
endpoints that enqueue Reconcile/Delete jobs or a replan rather than
mutating state directly. Every handler is routed through gorilla/mux with
a body-size ceiling, bearer-token auth, and request metrics middleware.

Errors are rendered as the §6 `{code, message}` envelope; writeAppError
maps a wferrors.Kind to the appropriate HTTP status.

/health, /ready, /live, and /metrics are exempt from the bearer-token
check so a process supervisor or Prometheus scraper needs no credential.
*/
package api
