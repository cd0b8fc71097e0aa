// Package app is the composition root: it wires every collaborator named
// in SPEC_FULL.md's component map into one running daemon, and implements
// the Controller the webhook handlers drive.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/cuemby/wafflemaker/pkg/api"
	"github.com/cuemby/wafflemaker/pkg/config"
	"github.com/cuemby/wafflemaker/pkg/dns"
	"github.com/cuemby/wafflemaker/pkg/events"
	"github.com/cuemby/wafflemaker/pkg/lease"
	"github.com/cuemby/wafflemaker/pkg/log"
	"github.com/cuemby/wafflemaker/pkg/metrics"
	"github.com/cuemby/wafflemaker/pkg/planner"
	"github.com/cuemby/wafflemaker/pkg/queue"
	"github.com/cuemby/wafflemaker/pkg/reconciler"
	"github.com/cuemby/wafflemaker/pkg/runtime"
	"github.com/cuemby/wafflemaker/pkg/secrets"
	"github.com/cuemby/wafflemaker/pkg/storage"
	"github.com/cuemby/wafflemaker/pkg/types"
)

// App owns every long-lived component's lifecycle: startup replay,
// serving, and graceful shutdown (§5, §9).
type App struct {
	cfg *config.Config

	registry storage.Registry
	driver   runtime.ContainerDriver
	store    secrets.SecretStore
	resolver *secrets.Resolver

	dnsServer *dns.Server
	dnsR      *dns.Reconciler

	leaseMgr *lease.Manager
	events   *events.Broker
	queue    *queue.Queue
	planner  *planner.Planner
	recon    *reconciler.Reconciler
	apiSrv   *api.Server
}

// New constructs every collaborator but starts nothing.
func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	registry, err := storage.NewPostgresRegistry(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	store, err := secrets.NewVaultStore(cfg.Vault.Address, cfg.Vault.Token)
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}

	driver, err := runtime.NewContainerdDriver(cfg.Runtime.ContainerdSocket, cfg.Runtime.Namespace)
	if err != nil {
		return nil, fmt.Errorf("open container runtime: %w", err)
	}

	dnsServer := dns.NewServer(dns.Config{
		ListenAddr: cfg.DNS.ListenAddr,
		Zone:       cfg.DNS.Zone,
		Upstream:   cfg.DNS.Upstream,
	})
	dnsR := dns.NewReconciler(dnsServer)

	resolver := secrets.NewResolver(store, nil, cfg.Postgres.ServiceHost, cfg.Postgres.ServiceDB, cfg.Redis.ServiceHost)

	eventBroker := events.NewBroker()

	a := &App{
		cfg:       cfg,
		registry:  registry,
		driver:    driver,
		store:     store,
		resolver:  resolver,
		dnsServer: dnsServer,
		dnsR:      dnsR,
		events:    eventBroker,
		planner:   planner.New(cfg.Source.RepoPath),
	}

	a.leaseMgr = lease.NewManager(store, a.onLeaseDead)
	a.recon = reconciler.New(registry, driver, resolver, dnsR, a.leaseMgr)
	a.queue = queue.New(cfg.Queue.Workers, a.handleJob)
	a.apiSrv = api.NewServer(registry, a.queue, a.leaseMgr, a.planner, cfg.HTTP.ManagementToken)

	return a, nil
}

// handleJob wraps the Reconciler with event publication and job-duration
// metrics, then hands off to Reconciler.Handle.
func (a *App) handleJob(ctx context.Context, job types.Job) {
	timer := metrics.NewTimer()
	a.events.Publish(&events.Event{Type: events.EventJobStarted, ServiceID: job.ServiceID})

	a.recon.Handle(ctx, job)

	timer.ObserveDurationVec(metrics.JobDuration, string(job.Kind))
	a.events.Publish(&events.Event{Type: events.EventJobCompleted, ServiceID: job.ServiceID})
}

func (a *App) onLeaseDead(serviceID string) {
	metrics.LeaseRenewalsTotal.WithLabelValues("failed").Inc()
	a.events.Publish(&events.Event{Type: events.EventLeaseDead, ServiceID: serviceID})
	a.queue.Enqueue(types.Job{
		Kind:       types.JobReconcile,
		ServiceID:  serviceID,
		EnqueuedAt: time.Now(),
	})
}

// TriggerPush implements webhook.Controller: it fast-forwards the source
// checkout to after, computes a plan from before, records the resulting
// Deployment, and enqueues its jobs (§4.1).
func (a *App) TriggerPush(ctx context.Context, before, after string) error {
	if err := a.fastForward(after); err != nil {
		return fmt.Errorf("fast-forward source checkout: %w", err)
	}

	deployment, jobs, err := a.planner.Plan(before)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	if deployment != nil {
		if err := a.registry.RecordDeployment(ctx, deployment); err != nil {
			return fmt.Errorf("record deployment: %w", err)
		}
	}

	metrics.PlansTotal.Inc()
	a.events.Publish(&events.Event{Type: events.EventDeploymentPlanned, Message: after})

	for _, job := range jobs {
		job.EnqueuedAt = time.Now()
		metrics.PlanJobsTotal.WithLabelValues(string(job.Kind)).Inc()
		a.queue.Enqueue(job)
	}
	return nil
}

func (a *App) fastForward(commit string) error {
	repo, err := git.PlainOpen(a.cfg.Source.RepoPath)
	if err != nil {
		return err
	}

	if err := repo.Fetch(&git.FetchOptions{}); err != nil && err != git.NoErrAlreadyUpToDate {
		log.Errorf("fetch source repository", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return err
	}

	return wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(commit)})
}

// TriggerImageUpdate implements webhook.Controller (§4.7 last section):
// every service tracking repo via an automatic update policy whose tag set
// matches the pushed tag is re-reconciled with that tag.
func (a *App) TriggerImageUpdate(ctx context.Context, repo, tag string) error {
	svcs, err := a.registry.ListServices(ctx)
	if err != nil {
		return err
	}

	for _, svc := range svcs {
		if svc.Spec.Docker.Image != repo {
			continue
		}
		if !reconciler.ShouldTriggerUpdate(svc.Spec.Docker, tag) {
			continue
		}

		updated := svc.Spec
		updated.Docker.Tag = tag
		a.queue.Enqueue(types.Job{
			Kind:       types.JobReconcile,
			ServiceID:  svc.ID,
			Spec:       &updated,
			EnqueuedAt: time.Now(),
		})
	}
	return nil
}

// Run starts every long-lived component, replays the last plan and
// re-tracks leases (§9), serves until ctx is cancelled, and shuts down
// cooperatively (§5).
func (a *App) Run(ctx context.Context) error {
	log.Init(log.Config{
		Level:      log.Level(a.cfg.LogLevel),
		JSONOutput: a.cfg.LogJSON,
		Output:     nil,
	})

	if err := a.replayStartupState(ctx); err != nil {
		return fmt.Errorf("startup replay: %w", err)
	}

	a.events.Start()
	a.leaseMgr.Start()

	dnsCtx, cancelDNS := context.WithCancel(context.Background())
	defer cancelDNS()
	go func() {
		if err := a.dnsServer.Start(dnsCtx); err != nil {
			log.Errorf("dns server stopped", err)
		}
	}()

	webhookSrv := a.startWebhookServer(ctx)

	apiErrCh := make(chan error, 1)
	go func() { apiErrCh <- a.apiSrv.Start(ctx, a.cfg.HTTP.ManagementAddr) }()

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.queue.Stop(stopCtx); err != nil {
		log.Errorf("queue did not drain cleanly", err)
	}
	a.leaseMgr.Stop()
	a.events.Stop()
	_ = a.dnsServer.Stop()
	_ = webhookSrv.Close()
	_ = a.registry.Close()

	return <-apiErrCh
}

// replayStartupState runs a no-op plan against the Registry's last
// recorded commit and re-tracks every outstanding lease, so a restart
// picks up exactly where the last clean Commit left off (§9).
func (a *App) replayStartupState(ctx context.Context) error {
	last, err := a.registry.LastCommit(ctx)
	if err != nil {
		return err
	}
	if _, _, err := a.planner.Plan(last); err != nil {
		log.Errorf("startup replan failed, continuing with tracked leases only", err)
	}

	leases, err := a.registry.ListAllLeases(ctx)
	if err != nil {
		return err
	}
	for _, l := range leases {
		a.leaseMgr.Track(*l)
	}
	log.Logger.Info().Int("leases", len(leases)).Msg("re-tracked leases at startup")
	return nil
}

func (a *App) startWebhookServer(ctx context.Context) io.Closer {
	mux := newWebhookMux(a.cfg, a)
	srv := &webhookHTTPServer{addr: a.cfg.HTTP.WebhookAddr, handler: mux}
	srv.start()
	return srv
}
