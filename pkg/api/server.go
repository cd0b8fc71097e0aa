package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cuemby/wafflemaker/pkg/lease"
	"github.com/cuemby/wafflemaker/pkg/log"
	"github.com/cuemby/wafflemaker/pkg/metrics"
	"github.com/cuemby/wafflemaker/pkg/planner"
	"github.com/cuemby/wafflemaker/pkg/queue"
	"github.com/cuemby/wafflemaker/pkg/storage"
)

// maxBodyBytes is the management API's request body ceiling (§6); bodies
// larger than this return 413.
const maxBodyBytes = 64 * 1024

// Server is the bearer-token management API described in §6: read-mostly
// inspection of Deployments/Services/Leases, plus write endpoints that
// enqueue work onto the Queue rather than mutating the Registry directly.
type Server struct {
	registry storage.Registry
	queue    *queue.Queue
	leases   *lease.Manager
	planner  *planner.Planner
	token    string

	router *mux.Router
}

// NewServer builds a management API Server. token is the static bearer
// token every request must present (Non-goals: no richer authz model).
func NewServer(registry storage.Registry, q *queue.Queue, leases *lease.Manager, pl *planner.Planner, token string) *Server {
	s := &Server{
		registry: registry,
		queue:    q,
		leases:   leases,
		planner:  pl,
		token:    token,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.limitBodyMiddleware)
	r.Use(s.authMiddleware)
	r.Use(s.metricsMiddleware)

	r.HandleFunc("/deployments", s.getDeployments).Methods(http.MethodGet)
	r.HandleFunc("/deployments", s.putDeployments).Methods(http.MethodPut)
	r.HandleFunc("/services", s.listServices).Methods(http.MethodGet)
	r.HandleFunc("/services/{id:.+}", s.getService).Methods(http.MethodGet)
	r.HandleFunc("/services/{id:.+}", s.putService).Methods(http.MethodPut)
	r.HandleFunc("/services/{id:.+}", s.deleteService).Methods(http.MethodDelete)
	r.HandleFunc("/leases", s.getLeases).Methods(http.MethodGet)
	r.HandleFunc("/leases/{service}", s.putLease).Methods(http.MethodPut)
	r.HandleFunc("/leases/{service}", s.deleteLease).Methods(http.MethodDelete)

	r.HandleFunc("/health", HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", ReadyHandler(registryChecker(s.registry))).Methods(http.MethodGet)
	r.HandleFunc("/live", LivenessHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return r
}

// Start runs the management API on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info().Str("addr", addr).Msg("management api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router directly, for tests that drive it with
// httptest without a listening socket.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) limitBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/ready" || r.URL.Path == "/live" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		const prefix = "Bearer "
		auth := r.Header.Get("Authorization")
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || auth[len(prefix):] != s.token {
			writeError(w, http.StatusUnauthorized, "auth_error", "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if rt := mux.CurrentRoute(r); rt != nil {
			if tmpl, err := rt.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.APIRequestsTotal.WithLabelValues(route, http.StatusText(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
