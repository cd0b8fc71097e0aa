package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/wafflemaker/pkg/lease"
	"github.com/cuemby/wafflemaker/pkg/planner"
	"github.com/cuemby/wafflemaker/pkg/queue"
	"github.com/cuemby/wafflemaker/pkg/types"
	"github.com/cuemby/wafflemaker/pkg/wferrors"
)

type fakeRegistry struct {
	mu            sync.Mutex
	services      map[string]*types.Service
	leases        map[string][]*types.Lease
	lastCommitErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{services: map[string]*types.Service{}, leases: map[string][]*types.Lease{}}
}

func (f *fakeRegistry) RecordDeployment(ctx context.Context, d *types.Deployment) error { return nil }
func (f *fakeRegistry) LastCommit(ctx context.Context) (string, error) {
	if f.lastCommitErr != nil {
		return "", f.lastCommitErr
	}
	return "abc123", nil
}
func (f *fakeRegistry) UpsertService(ctx context.Context, svc *types.Service) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[svc.ID] = svc
	return nil
}
func (f *fakeRegistry) GetService(ctx context.Context, id string) (*types.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	svc, ok := f.services[id]
	if !ok {
		return nil, wferrors.New(wferrors.KindNotFound, "service not found")
	}
	return svc, nil
}
func (f *fakeRegistry) ListServices(ctx context.Context) ([]*types.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Service
	for _, svc := range f.services {
		out = append(out, svc)
	}
	return out, nil
}
func (f *fakeRegistry) DeleteService(ctx context.Context, id string) error { return nil }
func (f *fakeRegistry) GetContainer(ctx context.Context, serviceID string) (*types.Container, error) {
	return nil, wferrors.New(wferrors.KindNotFound, "no container")
}
func (f *fakeRegistry) UpsertContainer(ctx context.Context, c *types.Container) error { return nil }
func (f *fakeRegistry) DeleteContainer(ctx context.Context, serviceID string) error   { return nil }
func (f *fakeRegistry) ListLeases(ctx context.Context, serviceID string) ([]*types.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leases[serviceID], nil
}
func (f *fakeRegistry) ListAllLeases(ctx context.Context) ([]*types.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Lease
	for _, ls := range f.leases {
		out = append(out, ls...)
	}
	return out, nil
}
func (f *fakeRegistry) DeleteLease(ctx context.Context, serviceID, leaseID string) error { return nil }
func (f *fakeRegistry) Commit(ctx context.Context, svc *types.Service, container *types.Container, newLeases []*types.Lease, retiredLeaseIDs []string) error {
	return nil
}
func (f *fakeRegistry) Close() error { return nil }

func newTestServer(t *testing.T, reg *fakeRegistry) *Server {
	t.Helper()
	q := queue.New(2, func(ctx context.Context, job types.Job) {})
	t.Cleanup(func() { _ = q.Stop(context.Background()) })
	lm := lease.NewManager(nil, nil)
	pl := planner.New(t.TempDir())
	return NewServer(reg, q, lm, pl, "test-token")
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer test-token")
	return req
}

func TestServer_RejectsMissingToken(t *testing.T) {
	s := newTestServer(t, newFakeRegistry())
	req := httptest.NewRequest(http.MethodGet, "/services", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_HealthEndpointsSkipAuth(t *testing.T) {
	s := newTestServer(t, newFakeRegistry())
	for _, path := range []string{"/health", "/live"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestServer_ListServices(t *testing.T) {
	reg := newFakeRegistry()
	reg.services["web"] = &types.Service{ID: "web"}
	s := newTestServer(t, reg)

	req := authed(httptest.NewRequest(http.MethodGet, "/services", nil))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var ids []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ids))
	assert.Equal(t, []string{"web"}, ids)
}

func TestServer_GetServiceNotFound(t *testing.T) {
	s := newTestServer(t, newFakeRegistry())
	req := authed(httptest.NewRequest(http.MethodGet, "/services/missing", nil))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, string(wferrors.KindNotFound), env.Code)
}

func TestServer_PutServiceEnqueuesReconcile(t *testing.T) {
	s := newTestServer(t, newFakeRegistry())
	body, _ := json.Marshal(types.ServiceSpec{Docker: types.DockerSpec{Image: "nginx"}})
	req := authed(httptest.NewRequest(http.MethodPut, "/services/web", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestServer_DeleteServiceEnqueuesDelete(t *testing.T) {
	s := newTestServer(t, newFakeRegistry())
	req := authed(httptest.NewRequest(http.MethodDelete, "/services/web", nil))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestServer_GetLeases(t *testing.T) {
	reg := newFakeRegistry()
	reg.leases["web"] = []*types.Lease{{ServiceID: "web", ID: "database/creds/web/1"}}
	s := newTestServer(t, reg)

	req := authed(httptest.NewRequest(http.MethodGet, "/leases", nil))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp leasesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Leases["web"], 1)
	assert.Equal(t, "web", resp.Services["web"])
}

func TestServer_PutLeaseRejectsUnknownService(t *testing.T) {
	s := newTestServer(t, newFakeRegistry())
	body, _ := json.Marshal(registerLeaseRequest{ID: "x", Expiration: time.Now().Add(time.Hour)})
	req := authed(httptest.NewRequest(http.MethodPut, "/leases/ghost", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_DeleteLeaseRequiresIDParam(t *testing.T) {
	s := newTestServer(t, newFakeRegistry())
	req := authed(httptest.NewRequest(http.MethodDelete, "/leases/web", nil))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
