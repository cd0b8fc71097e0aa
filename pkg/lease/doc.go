/*
Package lease implements LeaseManager (§4.5): the background process that
keeps every outstanding dynamic credential alive by renewing it before it
expires, and surfaces the ones it cannot save.

Tracked leases live in a single in-memory index guarded by one lock. A
single timer drives the renewal loop rather than one goroutine per lease,
the way the teacher's health monitor ticks all its container checks from
one loop: the tick interval is recomputed after every pass as
min(all tracked TTLs)/2, clamped to [30s, 300s] by config.LeaseTickInterval.
A lease is renewed once its remaining time drops below a third of its TTL.
When a renewal attempt fails, the lease is dropped from the index and
onDead fires so the caller can enqueue a Reconcile job for the owning
service.
*/
package lease
