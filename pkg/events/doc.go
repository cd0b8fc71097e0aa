/*
Package events is a small in-memory pub/sub fan-out used to surface job,
deployment, and lease lifecycle occurrences (EventJobEnqueued through
EventLeaseRevoked) to observers inside the process: the management API's
future event stream and structured-logging hooks.

A Broker holds one internal channel and a set of per-subscriber buffered
channels. Publish hands the event to the internal channel (100 deep); when
that buffer is full, Publish waits until the broker's loop drains it or
the Broker is stopped. Fan-out to subscribers never waits: a subscriber
whose own buffer is full simply misses the event.

Callers that need every event should read promptly and keep their own
durable log; the Broker makes no delivery guarantee beyond best effort.
*/
package events
