/*
Package queue implements the job queue and worker pool that sit between
the Planner/webhooks and the Reconciler (§4.2).

Jobs are dispatched through one actor per service: each service id gets
its own FIFO mailbox and a single goroutine draining it, so two jobs for
the same service never run concurrently and always run in enqueue order.
Actors share a bounded semaphore sized to the configured worker count, so
total concurrent reconciliation work across all services stays capped
even as the number of distinct services grows.

Shutdown is cooperative: Stop stops accepting new jobs and waits for
each actor to finish every job already in its mailbox, including the one
it is mid-handler on, up to the context deadline passed in (§5).
*/
package queue
