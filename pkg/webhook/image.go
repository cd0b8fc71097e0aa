package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cuemby/wafflemaker/pkg/log"
	"github.com/cuemby/wafflemaker/pkg/metrics"
)

const maxImageBody = 64 * 1024

// imagePayload is the §6 image-registry webhook body.
type imagePayload struct {
	PushData struct {
		Tag string `json:"tag"`
	} `json:"push_data"`
	CallbackURL string `json:"callback_url"`
	Repository  struct {
		RepoName string `json:"repo_name"`
	} `json:"repository"`
}

// ImageHandler authenticates the image-registry webhook with HTTP Basic
// auth against user/pass and, on success, triggers the §4.7 image-update
// logic for the pushed (repo, tag).
func ImageHandler(user, pass string, ctrl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, ok := r.BasicAuth()
		if !ok || !constantTimeEqual(gotUser, user) || !constantTimeEqual(gotPass, pass) {
			metrics.WebhooksTotal.WithLabelValues("image", "auth_error").Inc()
			w.Header().Set("WWW-Authenticate", `Basic realm="wafflemaker"`)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxImageBody+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if len(body) > maxImageBody {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}

		var payload imagePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			metrics.WebhooksTotal.WithLabelValues("image", "parse_error").Inc()
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}

		if err := ctrl.TriggerImageUpdate(r.Context(), payload.Repository.RepoName, payload.PushData.Tag); err != nil {
			metrics.WebhooksTotal.WithLabelValues("image", "error").Inc()
			log.Logger.Error().Err(err).Str("repo", payload.Repository.RepoName).Str("tag", payload.PushData.Tag).Msg("triggering image update failed")
			writeError(w, http.StatusInternalServerError, "failed to trigger update")
			return
		}

		metrics.WebhooksTotal.WithLabelValues("image", "accepted").Inc()
		w.WriteHeader(http.StatusAccepted)
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
