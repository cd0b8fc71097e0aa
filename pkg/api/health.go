package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/wafflemaker/pkg/storage"
)

// Checker is one named readiness probe. It runs against the real
// collaborator (the Registry, the secret store, ...) rather than an
// in-memory flag, so /ready reflects whether the daemon can actually do
// work right now.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// registryChecker reports the Registry reachable by asking for its last
// recorded commit. An empty Registry answers with no error; any error the
// query returns is reported as-is, making the check fail.
func registryChecker(r storage.Registry) Checker {
	return Checker{
		Name: "registry",
		Check: func(ctx context.Context) error {
			_, err := r.LastCommit(ctx)
			return err
		},
	}
}

type readyResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// ReadyHandler reports 200 iff every checker succeeds within a short
// per-check timeout, 503 otherwise.
func ReadyHandler(checkers ...Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp := readyResponse{Status: "ready", Components: make(map[string]string)}
		for _, c := range checkers {
			if err := c.Check(ctx); err != nil {
				resp.Status = "not_ready"
				resp.Components[c.Name] = err.Error()
			} else {
				resp.Components[c.Name] = "ok"
			}
		}

		status := http.StatusOK
		if resp.Status != "ready" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// HealthHandler always reports 200 while the process is alive; it is a
// simpler liveness signal than /ready.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}
}

// LivenessHandler is identical to HealthHandler; kept distinct so a
// process supervisor can point at /live independently of /health.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}
