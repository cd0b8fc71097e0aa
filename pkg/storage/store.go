package storage

import (
	"context"

	"github.com/cuemby/wafflemaker/pkg/types"
)

// Registry is the durable, relational source of truth for deployments,
// services, containers, and leases. It is the only shared state the core
// components coordinate through (§5).
type Registry interface {
	// RecordDeployment inserts a Deployment and its Changes atomically. It
	// is never called twice for the same commit.
	RecordDeployment(ctx context.Context, d *types.Deployment) error

	// LastCommit returns the most recently recorded deployment's commit, or
	// "" if the Registry has never recorded one. Used to replay a no-op
	// plan on restart (§9).
	LastCommit(ctx context.Context) (string, error)

	// Services
	UpsertService(ctx context.Context, svc *types.Service) error
	GetService(ctx context.Context, id string) (*types.Service, error)
	ListServices(ctx context.Context) ([]*types.Service, error)
	DeleteService(ctx context.Context, id string) error

	// Containers
	GetContainer(ctx context.Context, serviceID string) (*types.Container, error)
	UpsertContainer(ctx context.Context, c *types.Container) error
	DeleteContainer(ctx context.Context, serviceID string) error

	// Leases
	ListLeases(ctx context.Context, serviceID string) ([]*types.Lease, error)
	ListAllLeases(ctx context.Context) ([]*types.Lease, error)
	DeleteLease(ctx context.Context, serviceID, leaseID string) error

	// Commit performs the atomic write at the end of a successful Reconcile
	// job (§4.7 step 9): replace the service's Container row, insert the
	// newly issued Leases, and delete the retired ones.
	Commit(ctx context.Context, svc *types.Service, container *types.Container, newLeases []*types.Lease, retiredLeaseIDs []string) error

	Close() error
}
