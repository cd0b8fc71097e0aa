/*
Package reconciler implements the per-service state machine that turns a
Job into running, observable, committed state (§4.7).

A Reconcile job walks: Pulling the image, Resolving secrets and
dependencies, Creating the candidate container, Starting it, HealthProbe
(via pkg/health), SwapDNS for web-enabled services, RetireOld (tearing
down the previous container), and Commit, the single atomic Registry
write that replaces the old container row, inserts newly issued leases,
and deletes retired ones. Nothing is written to the Registry before
Commit, so a failure at any earlier step rolls back by discarding the
candidate container and revoking the leases issued for the attempt: the
previously committed state was never touched.

A Delete job tears a service down best-effort: stop and remove its
container, delete its DNS record, revoke its leases, then delete its
Registry rows. Each step's failure is logged and does not block the
next.

A Fail job never touches the Registry or the runtime; it exists purely
to surface a Planner-side parse error against the service it would have
reconciled.
*/
package reconciler
