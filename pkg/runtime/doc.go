/*
Package runtime defines ContainerDriver, the narrow contract the Reconciler
drives a service's container lifecycle through (§6: pull, create, start,
inspect, stop, remove), and ContainerdDriver, its containerd-backed
implementation.

ContainerdDriver isolates all of WaffleMaker's containers in a single
containerd namespace. Stop sends SIGTERM and waits up to the caller-supplied
grace period before escalating to SIGKILL, matching the Reconciler's
RetireOld step (§4.7). Inspect reports both the coarse run state and the
container's routed address, read out of its network namespace via nsenter,
which the DNS reconciler upserts a record against.
*/
package runtime
