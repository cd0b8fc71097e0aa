package lease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/wafflemaker/pkg/secrets"
	"github.com/cuemby/wafflemaker/pkg/types"
	"github.com/cuemby/wafflemaker/pkg/wferrors"
)

type fakeStore struct {
	mu        sync.Mutex
	renewed   map[string]int
	failIDs   map[string]bool
	renewedTTL time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		renewed:    make(map[string]int),
		failIDs:    make(map[string]bool),
		renewedTTL: time.Hour,
	}
}

func (f *fakeStore) ReadKV(ctx context.Context, path string) (string, error) { return "", nil }
func (f *fakeStore) WriteKV(ctx context.Context, path, value string) error  { return nil }
func (f *fakeStore) DeletePrefix(ctx context.Context, prefix string) error  { return nil }
func (f *fakeStore) IssueDynamic(ctx context.Context, rolePath string) (*secrets.DynamicCredential, error) {
	return nil, nil
}

func (f *fakeStore) RenewLease(ctx context.Context, leaseID string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renewed[leaseID]++
	if f.failIDs[leaseID] {
		return 0, wferrors.New(wferrors.KindUpstream, "renew failed")
	}
	return f.renewedTTL, nil
}

func (f *fakeStore) RevokeLease(ctx context.Context, leaseID string) error { return nil }

func (f *fakeStore) renewCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renewed[id]
}

func TestManager_TickRenewsLeasesBelowThreshold(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, nil)

	m.Track(types.Lease{
		ID:         "due",
		ServiceID:  "svc-a",
		TTL:        90 * time.Second,
		Expiration: time.Now().Add(10 * time.Second), // remaining < ttl/3 (30s)
	})
	m.Track(types.Lease{
		ID:         "not-due",
		ServiceID:  "svc-b",
		TTL:        90 * time.Second,
		Expiration: time.Now().Add(80 * time.Second), // remaining > ttl/3
	})

	m.tick(context.Background())

	assert.Equal(t, 1, store.renewCount("due"))
	assert.Equal(t, 0, store.renewCount("not-due"))
}

func TestManager_TickDropsAndReportsFailedRenewal(t *testing.T) {
	store := newFakeStore()
	store.failIDs["dead"] = true

	var deadServices []string
	m := NewManager(store, func(serviceID string) {
		deadServices = append(deadServices, serviceID)
	})

	m.Track(types.Lease{
		ID:         "dead",
		ServiceID:  "svc-c",
		TTL:        90 * time.Second,
		Expiration: time.Now().Add(1 * time.Second),
	})

	m.tick(context.Background())

	require.Equal(t, []string{"svc-c"}, deadServices)
	m.mu.Lock()
	_, tracked := m.leases["dead"]
	m.mu.Unlock()
	assert.False(t, tracked)
}

func TestManager_RevokeAllForService(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, nil)

	m.Track(types.Lease{ID: "a", ServiceID: "svc-x", TTL: time.Hour, Expiration: time.Now().Add(time.Hour)})
	m.Track(types.Lease{ID: "b", ServiceID: "svc-x", TTL: time.Hour, Expiration: time.Now().Add(time.Hour)})
	m.Track(types.Lease{ID: "c", ServiceID: "svc-y", TTL: time.Hour, Expiration: time.Now().Add(time.Hour)})

	err := m.RevokeAllForService(context.Background(), "svc-x")
	require.NoError(t, err)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Len(t, m.leases, 1)
	_, ok := m.leases["c"]
	assert.True(t, ok)
}

func TestManager_NextIntervalFallsBackWhenEmpty(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, nil)
	assert.Equal(t, 300*time.Second, m.nextInterval())
}

func TestManager_StartStop(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, nil)
	m.Track(types.Lease{ID: "a", ServiceID: "svc-a", TTL: 60 * time.Second, Expiration: time.Now().Add(time.Millisecond)})

	m.Start()
	time.Sleep(10 * time.Millisecond)
	m.Stop()
}
