/*
Package dns implements the authoritative zone WaffleMaker publishes for
reconciled services (§4.6).

Provider is the narrow upsert/delete contract against the zone. Server is
a miekg/dns-backed implementation: an in-memory hostname-to-address map
served over UDP, with anything outside the map forwarded to the
configured upstream resolvers.

Reconciler wraps a Provider with the SwapDNS/RetireOld retry policy: a
failed Delete is retried a bounded number of times before the error is
surfaced to the caller, since a stale DNS record is safer to leave behind
temporarily than to let a delete failure block reconciliation.
*/
package dns
