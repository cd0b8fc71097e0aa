package runtime

import (
	"context"
	"time"
)

// ContainerSpec is what the Reconciler hands the driver at Create time: the
// container name, the image, the resolved env, and labels (§4.7 step 4).
// The Reconciler names a candidate after the service id's last segment plus
// a fresh UUID, so the name differs on every attempt, and sets only a
// service_id label; no web or ingress labels are added for web-enabled
// services.
type ContainerSpec struct {
	Name   string
	Image  string
	Env    map[string]string
	Labels map[string]string
}

// State is a coarse container run state.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateUnknown State = "unknown"
)

// Status is what Inspect reports: the run state plus the routed address the
// DNS reconciler upserts a record against.
type Status struct {
	State   State
	Address string
}

// ContainerDriver is the narrow contract the Reconciler drives a container's
// lifecycle through (§6): pull, create, start, inspect, stop, remove.
type ContainerDriver interface {
	Pull(ctx context.Context, image string) error
	Create(ctx context.Context, spec ContainerSpec) (runtimeID string, err error)
	Start(ctx context.Context, runtimeID string) error
	Inspect(ctx context.Context, runtimeID string) (Status, error)
	Stop(ctx context.Context, runtimeID string, grace time.Duration) error
	Remove(ctx context.Context, runtimeID string) error
}
