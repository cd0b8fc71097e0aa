package reconciler

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/wafflemaker/pkg/dns"
	"github.com/cuemby/wafflemaker/pkg/health"
	"github.com/cuemby/wafflemaker/pkg/lease"
	"github.com/cuemby/wafflemaker/pkg/log"
	"github.com/cuemby/wafflemaker/pkg/runtime"
	"github.com/cuemby/wafflemaker/pkg/secrets"
	"github.com/cuemby/wafflemaker/pkg/spec"
	"github.com/cuemby/wafflemaker/pkg/storage"
	"github.com/cuemby/wafflemaker/pkg/types"
)

// stopGrace is how long a retired or failed container is given to exit
// cleanly before the driver is told to force-remove it.
const stopGrace = 10 * time.Second

// Reconciler drives a single Job through to completion. It holds no
// per-job state between calls to Handle; everything it needs travels in
// the Job or is read fresh from the Registry.
type Reconciler struct {
	registry storage.Registry
	driver   runtime.ContainerDriver
	resolver *secrets.Resolver
	dnsR     *dns.Reconciler
	leases   *lease.Manager
}

// New builds a Reconciler.
func New(registry storage.Registry, driver runtime.ContainerDriver, resolver *secrets.Resolver, dnsR *dns.Reconciler, leases *lease.Manager) *Reconciler {
	return &Reconciler{
		registry: registry,
		driver:   driver,
		resolver: resolver,
		dnsR:     dnsR,
		leases:   leases,
	}
}

// Handle dispatches job to the matching state machine. It is the Handler
// pkg/queue invokes for every dequeued job.
func (r *Reconciler) Handle(ctx context.Context, job types.Job) {
	switch job.Kind {
	case types.JobReconcile:
		r.reconcile(ctx, job)
	case types.JobDelete:
		r.delete(ctx, job)
	case types.JobFail:
		r.fail(job)
	default:
		log.WithServiceID(job.ServiceID).Error().Str("kind", string(job.Kind)).Msg("unknown job kind")
	}
}

func (r *Reconciler) fail(job types.Job) {
	log.WithServiceID(job.ServiceID).Error().Str("reason", job.Reason).Msg("service spec failed to parse, skipping reconciliation")
}

func (r *Reconciler) reconcile(ctx context.Context, job types.Job) {
	serviceID := job.ServiceID
	logger := log.WithServiceID(serviceID)
	svcSpec := job.Spec
	if svcSpec == nil {
		logger.Error().Msg("reconcile job missing spec")
		return
	}

	prior, _ := r.registry.GetContainer(ctx, serviceID)

	image := svcSpec.Docker.Image + ":" + svcSpec.Docker.Tag

	// Pulling
	logger.Debug().Str("image", image).Msg("pulling image")
	if err := r.driver.Pull(ctx, image); err != nil {
		r.rollback(ctx, logger, serviceID, "pull", err, nil)
		return
	}

	// Resolving
	env, newLeases, err := r.resolver.Resolve(ctx, serviceID, *svcSpec)
	if err != nil {
		r.rollback(ctx, logger, serviceID, "resolve secrets", err, newLeases)
		return
	}

	// Creating
	candidateName := fmt.Sprintf("%s-%s", spec.IDTail(serviceID), uuid.NewString())
	containerSpec := runtime.ContainerSpec{
		Name:   candidateName,
		Image:  image,
		Env:    env,
		Labels: map[string]string{"service_id": serviceID},
	}
	runtimeID, err := r.driver.Create(ctx, containerSpec)
	if err != nil {
		r.rollback(ctx, logger, serviceID, "create container", err, newLeases)
		return
	}

	// Starting
	if err := r.driver.Start(ctx, runtimeID); err != nil {
		r.teardownCandidate(ctx, logger, runtimeID)
		r.rollback(ctx, logger, serviceID, "start container", err, newLeases)
		return
	}

	// HealthProbe
	checker, err := r.buildChecker(ctx, svcSpec.Health, runtimeID)
	if err != nil {
		r.teardownCandidate(ctx, logger, runtimeID)
		r.rollback(ctx, logger, serviceID, "build health checker", err, newLeases)
		return
	}
	healthy, err := health.Probe(ctx, checker, &driverRunner{driver: r.driver, runtimeID: runtimeID})
	if err != nil || !healthy {
		r.teardownCandidate(ctx, logger, runtimeID)
		r.rollback(ctx, logger, serviceID, "health probe", err, newLeases)
		return
	}

	// SwapDNS: a failed upsert does not roll back an already-healthy
	// candidate, it is surfaced as a warning and reconciliation continues.
	if svcSpec.Web != nil && svcSpec.Web.Enabled {
		status, err := r.driver.Inspect(ctx, runtimeID)
		if err != nil || status.Address == "" {
			r.teardownCandidate(ctx, logger, runtimeID)
			r.rollback(ctx, logger, serviceID, "inspect for dns", err, newLeases)
			return
		}
		hostname := spec.Hostname(serviceID, svcSpec.Web.Base)
		if err := r.dnsR.Upsert(ctx, hostname, parseIP(status.Address)); err != nil {
			logger.Warn().Err(err).Str("hostname", hostname).Msg("dns upsert failed, keeping healthy candidate")
		}
	}

	// RetireOld
	if prior != nil && prior.RuntimeID != "" {
		if err := r.driver.Stop(ctx, prior.RuntimeID, stopGrace); err != nil {
			logger.Warn().Err(err).Msg("stop previous container")
		}
		if err := r.driver.Remove(ctx, prior.RuntimeID); err != nil {
			logger.Warn().Err(err).Msg("remove previous container")
		}
	}

	// Commit
	now := time.Now()
	createdAt := now
	if existing, err := r.registry.GetService(ctx, serviceID); err == nil && existing != nil {
		createdAt = existing.CreatedAt
	}

	svc := &types.Service{
		ID:        serviceID,
		Spec:      *svcSpec,
		Path:      job.ServiceID,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	if svcSpec.Web != nil && svcSpec.Web.Enabled {
		svc.Domain = spec.Hostname(serviceID, svcSpec.Web.Base)
	}

	containerCreatedAt := now
	if prior != nil {
		containerCreatedAt = prior.CreatedAt
	}
	newContainer := &types.Container{
		ServiceID: serviceID,
		RuntimeID: runtimeID,
		Image:     image,
		Status:    types.ContainerHealthy,
		CreatedAt: containerCreatedAt,
		UpdatedAt: now,
	}

	retired := retiredLeaseIDs(serviceID, r.priorLeases(ctx, serviceID), newLeases)

	if err := r.registry.Commit(ctx, svc, newContainer, newLeases, retired); err != nil {
		logger.Error().Err(err).Msg("commit failed after successful swap")
		return
	}

	for _, l := range newLeases {
		r.leases.Track(l)
	}
	for _, id := range retired {
		r.leases.Untrack(id)
	}

	logger.Info().Str("runtime_id", runtimeID).Msg("reconcile complete")
}

func (r *Reconciler) priorLeases(ctx context.Context, serviceID string) []*types.Lease {
	leases, err := r.registry.ListLeases(ctx, serviceID)
	if err != nil {
		return nil
	}
	return leases
}

// retiredLeaseIDs is every previously tracked lease id not present among
// the freshly issued leases: a regenerated secret or a dropped dependency
// both retire their old credential.
func retiredLeaseIDs(serviceID string, prior []*types.Lease, fresh []types.Lease) []string {
	keep := make(map[string]bool, len(fresh))
	for _, l := range fresh {
		keep[l.ID] = true
	}
	var retired []string
	for _, p := range prior {
		if !keep[p.ID] {
			retired = append(retired, p.ID)
		}
	}
	return retired
}

// teardownCandidate stops and removes a candidate container that failed
// after Create, best-effort: the candidate never replaced the committed
// container, so a failure here does not need to retry or surface further.
func (r *Reconciler) teardownCandidate(ctx context.Context, logger zerolog.Logger, runtimeID string) {
	if err := r.driver.Stop(ctx, runtimeID, stopGrace); err != nil {
		logger.Warn().Err(err).Str("runtime_id", runtimeID).Msg("stop candidate during rollback")
	}
	if err := r.driver.Remove(ctx, runtimeID); err != nil {
		logger.Warn().Err(err).Str("runtime_id", runtimeID).Msg("remove candidate during rollback")
	}
}

// rollback revokes any leases issued for the failed attempt and logs the
// failed step. The previously committed service and container state was
// never touched, so there is nothing else to undo.
func (r *Reconciler) rollback(ctx context.Context, logger zerolog.Logger, serviceID, step string, cause error, newLeases []types.Lease) {
	if err := r.resolver.RevokeLeases(ctx, newLeases); err != nil {
		logger.Warn().Err(err).Str("service_id", serviceID).Msg("failed to revoke lease during rollback")
	}
	logger.Error().Err(cause).Str("service_id", serviceID).Str("step", step).Msg("reconcile failed, rolled back")
}

// buildChecker constructs the Checker a service's health declaration asks
// for, resolving the candidate container's address for http/tcp checks. A
// service with no declaration gets a nil Checker, so Probe falls back to
// polling the driver's running state (§9).
func (r *Reconciler) buildChecker(ctx context.Context, hc *types.HealthCheckSpec, runtimeID string) (health.Checker, error) {
	if hc == nil {
		return nil, nil
	}

	if hc.Kind == types.HealthCheckExec {
		return health.NewExecChecker(hc.Command).WithContainer(runtimeID), nil
	}

	address := hc.Address
	if address == "" {
		status, err := r.driver.Inspect(ctx, runtimeID)
		if err != nil {
			return nil, err
		}
		address = status.Address
	}

	switch hc.Kind {
	case types.HealthCheckHTTP:
		return health.NewHTTPChecker(fmt.Sprintf("http://%s%s", address, hc.Path)), nil
	case types.HealthCheckTCP:
		return health.NewTCPChecker(address), nil
	default:
		return nil, fmt.Errorf("unknown health check kind %q", hc.Kind)
	}
}

func (r *Reconciler) delete(ctx context.Context, job types.Job) {
	serviceID := job.ServiceID
	logger := log.WithServiceID(serviceID)

	if container, err := r.registry.GetContainer(ctx, serviceID); err == nil && container != nil {
		if err := r.driver.Stop(ctx, container.RuntimeID, stopGrace); err != nil {
			logger.Warn().Err(err).Msg("stop container on delete")
		}
		if err := r.driver.Remove(ctx, container.RuntimeID); err != nil {
			logger.Warn().Err(err).Msg("remove container on delete")
		}
	}

	if svc, err := r.registry.GetService(ctx, serviceID); err == nil && svc != nil {
		if svc.Spec.Web != nil && svc.Spec.Web.Enabled {
			hostname := spec.Hostname(serviceID, svc.Spec.Web.Base)
			if err := r.dnsR.Delete(ctx, hostname); err != nil {
				logger.Warn().Err(err).Msg("delete dns record")
			}
		}
	}

	if err := r.leases.RevokeAllForService(ctx, serviceID); err != nil {
		logger.Warn().Err(err).Msg("revoke leases on delete")
	}

	if err := r.registry.DeleteContainer(ctx, serviceID); err != nil {
		logger.Warn().Err(err).Msg("delete container row")
	}
	if err := r.registry.DeleteService(ctx, serviceID); err != nil {
		logger.Error().Err(err).Msg("delete service row")
	}

	logger.Info().Msg("delete complete")
}

// driverRunner adapts ContainerDriver.Inspect to health.RunningProber for
// services that declare no application-level health check.
type driverRunner struct {
	driver    runtime.ContainerDriver
	runtimeID string
}

func (d *driverRunner) Running(ctx context.Context) (bool, error) {
	status, err := d.driver.Inspect(ctx, d.runtimeID)
	if err != nil {
		return false, err
	}
	return status.State == runtime.StateRunning, nil
}

func parseIP(address string) net.IP {
	if host, _, err := net.SplitHostPort(address); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(address)
}

// ShouldTriggerUpdate reports whether an image-registry push for tag
// should cause a service declaring docker to be re-reconciled (§4.7):
// automatic updates must be enabled, and the pushed tag must be the
// tracked tag or one of the additional tags the service also follows.
func ShouldTriggerUpdate(docker types.DockerSpec, tag string) bool {
	if !docker.Update.Automatic {
		return false
	}
	if tag == docker.Tag {
		return true
	}
	for _, t := range docker.Update.AdditionalTags {
		if t == tag {
			return true
		}
	}
	return false
}
