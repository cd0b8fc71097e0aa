package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cuemby/wafflemaker/pkg/types"
	"github.com/cuemby/wafflemaker/pkg/wferrors"
)

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Code: code, Message: message})
}

// writeAppError renders a wferrors.Error (or any error) as the §6 error
// envelope, picking an HTTP status from its Kind.
func writeAppError(w http.ResponseWriter, err error) {
	kind := wferrors.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case wferrors.KindParse:
		status = http.StatusBadRequest
	case wferrors.KindAuth:
		status = http.StatusUnauthorized
	case wferrors.KindNotFound:
		status = http.StatusNotFound
	case wferrors.KindConflict:
		status = http.StatusConflict
	case wferrors.KindUpstream, wferrors.KindTransient:
		status = http.StatusBadGateway
	case wferrors.KindFatal:
		status = http.StatusInternalServerError
	}
	writeError(w, status, string(kind), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// deploymentsResponse is the §6 GET /deployments shape: the last reconciled
// commit, the services known at that commit, and how many currently have a
// committed, running container.
type deploymentsResponse struct {
	Commit   string   `json:"commit"`
	Services []string `json:"services"`
	Running  int      `json:"running"`
}

func (s *Server) getDeployments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	commit, err := s.registry.LastCommit(ctx)
	if err != nil {
		writeAppError(w, err)
		return
	}

	svcs, err := s.registry.ListServices(ctx)
	if err != nil {
		writeAppError(w, err)
		return
	}

	resp := deploymentsResponse{Commit: commit}
	for _, svc := range svcs {
		resp.Services = append(resp.Services, svc.ID)
		if c, err := s.registry.GetContainer(ctx, svc.ID); err == nil && c != nil && c.Status == types.ContainerHealthy {
			resp.Running++
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// putDeployments enqueues a replan from ?before=<hash> against the
// Planner's current checkout HEAD (§4.1). When the Planner returns a
// Deployment, this handler records it in the Registry before enqueuing the
// resulting jobs.
func (s *Server) putDeployments(w http.ResponseWriter, r *http.Request) {
	before := r.URL.Query().Get("before")

	deployment, jobs, err := s.planner.Plan(before)
	if err != nil {
		writeAppError(w, wferrors.Wrap(wferrors.KindParse, "plan", err))
		return
	}

	if deployment != nil {
		if err := s.registry.RecordDeployment(r.Context(), deployment); err != nil {
			writeAppError(w, err)
			return
		}
	}
	for _, job := range jobs {
		job.EnqueuedAt = time.Now()
		s.queue.Enqueue(job)
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"jobs": len(jobs)})
}

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	svcs, err := s.registry.ListServices(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	ids := make([]string, 0, len(svcs))
	for _, svc := range svcs {
		ids = append(ids, svc.ID)
	}
	writeJSON(w, http.StatusOK, ids)
}

// serviceSummary is the §6 GET /services/:id shape.
type serviceSummary struct {
	ID        string            `json:"id"`
	Domain    string            `json:"domain,omitempty"`
	Spec      types.ServiceSpec `json:"spec"`
	Container *types.Container  `json:"container,omitempty"`
}

func (s *Server) getService(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	svc, err := s.registry.GetService(ctx, id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	summary := serviceSummary{ID: svc.ID, Domain: svc.Domain, Spec: svc.Spec}
	if c, err := s.registry.GetContainer(ctx, id); err == nil {
		summary.Container = c
	}
	writeJSON(w, http.StatusOK, summary)
}

// putService enqueues a Reconcile for id using the posted ServiceSpec
// (§6 PUT /services/:id).
func (s *Server) putService(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var spec types.ServiceSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, string(wferrors.KindParse), "invalid service spec: "+err.Error())
		return
	}

	s.queue.Enqueue(types.Job{
		Kind:       types.JobReconcile,
		ServiceID:  id,
		Spec:       &spec,
		EnqueuedAt: time.Now(),
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"service_id": id, "status": "enqueued"})
}

func (s *Server) deleteService(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.queue.Enqueue(types.Job{
		Kind:       types.JobDelete,
		ServiceID:  id,
		EnqueuedAt: time.Now(),
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"service_id": id, "status": "enqueued"})
}

// leasesResponse is the §6 GET /leases shape, keyed by service name per
// §9's Open Question decision (not the legacy deployment-id form).
type leasesResponse struct {
	Leases   map[string][]*types.Lease `json:"leases"`
	Services map[string]string         `json:"services"`
}

func (s *Server) getLeases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	all, err := s.registry.ListAllLeases(ctx)
	if err != nil {
		writeAppError(w, err)
		return
	}

	resp := leasesResponse{
		Leases:   make(map[string][]*types.Lease),
		Services: make(map[string]string),
	}
	for _, l := range all {
		resp.Leases[l.ServiceID] = append(resp.Leases[l.ServiceID], l)
		resp.Services[l.ServiceID] = l.ServiceID
	}
	writeJSON(w, http.StatusOK, resp)
}

type registerLeaseRequest struct {
	ID         string    `json:"id"`
	Expiration time.Time `json:"expiration"`
}

// putLease registers an externally issued lease against service, per §6
// PUT /leases/:service. It rejects the request before ever tracking the
// lease if service does not exist (§4.5): there is nothing to revoke
// because the LeaseManager never sees it.
func (s *Server) putLease(w http.ResponseWriter, r *http.Request) {
	service := mux.Vars(r)["service"]

	var req registerLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(wferrors.KindParse), "invalid lease: "+err.Error())
		return
	}
	if req.ID == "" || req.Expiration.IsZero() {
		writeError(w, http.StatusBadRequest, string(wferrors.KindParse), "id and expiration are required")
		return
	}

	if _, err := s.registry.GetService(r.Context(), service); err != nil {
		writeAppError(w, err)
		return
	}

	s.leases.Track(types.Lease{
		ServiceID:  service,
		ID:         req.ID,
		Expiration: req.Expiration,
		TTL:        time.Until(req.Expiration),
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "tracked"})
}

// deleteLease untracks (without revoking, per §4.5 UntrackLease) the lease
// named by ?id= for service.
func (s *Server) deleteLease(w http.ResponseWriter, r *http.Request) {
	leaseID := r.URL.Query().Get("id")
	if leaseID == "" {
		writeError(w, http.StatusBadRequest, string(wferrors.KindParse), "id query parameter is required")
		return
	}
	s.leases.Untrack(leaseID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "untracked"})
}
