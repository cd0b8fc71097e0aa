package lease

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/wafflemaker/pkg/config"
	"github.com/cuemby/wafflemaker/pkg/log"
	"github.com/cuemby/wafflemaker/pkg/secrets"
	"github.com/cuemby/wafflemaker/pkg/types"
)

// renewThreshold is the fraction of TTL remaining below which a lease is
// due for renewal (§4.5).
const renewThreshold = 3

// Manager tracks outstanding dynamic credentials and renews them before
// they expire.
type Manager struct {
	store  secrets.SecretStore
	onDead func(serviceID string)

	mu     sync.Mutex
	leases map[string]types.Lease // keyed by Lease.ID

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewManager builds a Manager. onDead is invoked (outside the lock) for
// every lease that could not be renewed, naming the service that owned it.
func NewManager(store secrets.SecretStore, onDead func(serviceID string)) *Manager {
	return &Manager{
		store:  store,
		onDead: onDead,
		leases: make(map[string]types.Lease),
	}
}

// Track begins renewing lease.
func (m *Manager) Track(lease types.Lease) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leases[lease.ID] = lease
}

// Untrack stops renewing leaseID without revoking it.
func (m *Manager) Untrack(leaseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, leaseID)
}

// RevokeAllForService revokes and untracks every lease owned by serviceID,
// used when a service is deleted.
func (m *Manager) RevokeAllForService(ctx context.Context, serviceID string) error {
	m.mu.Lock()
	var toRevoke []string
	for id, l := range m.leases {
		if l.ServiceID == serviceID {
			toRevoke = append(toRevoke, id)
		}
	}
	m.mu.Unlock()

	var firstErr error
	for _, id := range toRevoke {
		if err := m.store.RevokeLease(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
		m.Untrack(id)
	}
	return firstErr
}

// Start runs the renewal loop in a goroutine.
func (m *Manager) Start() {
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.run()
}

// Stop halts the renewal loop and waits for it to exit.
func (m *Manager) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *Manager) run() {
	defer close(m.doneCh)

	timer := time.NewTimer(m.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			m.tick(context.Background())
			timer.Reset(m.nextInterval())
		case <-m.stopCh:
			return
		}
	}
}

// nextInterval recomputes the tick period from the leases currently
// tracked. With nothing tracked it falls back to the ceiling, since there
// is no urgency.
func (m *Manager) nextInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.leases) == 0 {
		return 300 * time.Second
	}
	min := m.leases[firstKey(m.leases)].TTL
	for _, l := range m.leases {
		if l.TTL < min {
			min = l.TTL
		}
	}
	return config.LeaseTickInterval(min)
}

func firstKey(leases map[string]types.Lease) string {
	for k := range leases {
		return k
	}
	return ""
}

// tick renews every lease whose remaining time has dropped below
// ttl/renewThreshold, and drops+reports the ones that fail to renew.
func (m *Manager) tick(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	due := make([]types.Lease, 0, len(m.leases))
	for _, l := range m.leases {
		if l.Expiration.Sub(now) < l.TTL/renewThreshold {
			due = append(due, l)
		}
	}
	m.mu.Unlock()

	for _, l := range due {
		newTTL, err := m.store.RenewLease(ctx, l.ID)
		if err != nil {
			log.WithServiceID(l.ServiceID).Warn().Str("lease_id", l.ID).Msg("lease renewal failed, surfacing for reconcile")
			m.Untrack(l.ID)
			if m.onDead != nil {
				m.onDead(l.ServiceID)
			}
			continue
		}

		m.mu.Lock()
		if tracked, ok := m.leases[l.ID]; ok {
			tracked.TTL = newTTL
			tracked.Expiration = now.Add(newTTL)
			m.leases[l.ID] = tracked
		}
		m.mu.Unlock()
	}
}
