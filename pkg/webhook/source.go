package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cuemby/wafflemaker/pkg/log"
	"github.com/cuemby/wafflemaker/pkg/metrics"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
	maxSourceBody   = 64 * 1024
)

// sourcePayload covers both shapes §6 describes: a push event and a ping.
type sourcePayload struct {
	Ref    string `json:"ref"`
	Before string `json:"before"`
	After  string `json:"after"`

	Zen    string `json:"zen"`
	HookID int64  `json:"hook_id"`
}

func (p sourcePayload) isPing() bool {
	return p.Zen != "" || p.HookID != 0
}

// SourceHandler verifies the HMAC-SHA256 signature of the source-repository
// webhook body against secret and dispatches push events to ctrl. A ping is
// acknowledged with 204 and never reaches the Planner. An invalid signature
// is an AuthError and never enters the queue (§7): it is rejected before
// the body is even parsed for routing.
func SourceHandler(secret string, ctrl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxSourceBody+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if len(body) > maxSourceBody {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}

		if !validSignature(secret, body, r.Header.Get(signatureHeader)) {
			metrics.WebhooksTotal.WithLabelValues("source", "auth_error").Inc()
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		var payload sourcePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			metrics.WebhooksTotal.WithLabelValues("source", "parse_error").Inc()
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}

		if payload.isPing() {
			metrics.WebhooksTotal.WithLabelValues("source", "ping").Inc()
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if payload.After == "" {
			// A push-shaped body with no commit transition emits no jobs (§4.1).
			metrics.WebhooksTotal.WithLabelValues("source", "noop").Inc()
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if err := ctrl.TriggerPush(r.Context(), payload.Before, payload.After); err != nil {
			metrics.WebhooksTotal.WithLabelValues("source", "error").Inc()
			log.Logger.Error().Err(err).Str("before", payload.Before).Str("after", payload.After).Msg("triggering push plan failed")
			writeError(w, http.StatusInternalServerError, "failed to trigger plan")
			return
		}

		metrics.WebhooksTotal.WithLabelValues("source", "accepted").Inc()
		w.WriteHeader(http.StatusAccepted)
	}
}

func validSignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" || len(header) <= len(signaturePrefix) {
		return false
	}
	if header[:len(signaturePrefix)] != signaturePrefix {
		return false
	}
	given, err := hex.DecodeString(header[len(signaturePrefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := mac.Sum(nil)

	return hmac.Equal(given, want)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
