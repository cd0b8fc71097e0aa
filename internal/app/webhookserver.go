package app

import (
	"context"
	"net/http"
	"time"

	"github.com/cuemby/wafflemaker/pkg/config"
	"github.com/cuemby/wafflemaker/pkg/log"
	"github.com/cuemby/wafflemaker/pkg/webhook"
)

// newWebhookMux mounts the source-repository and image-registry webhook
// receivers (§6) on their own listen address, separate from the bearer
// token management API.
func newWebhookMux(cfg *config.Config, ctrl webhook.Controller) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/source", webhook.SourceHandler(cfg.HTTP.SourceHMACSecret, ctrl))
	mux.HandleFunc("/webhooks/image", webhook.ImageHandler(cfg.HTTP.RegistryUser, cfg.HTTP.RegistryPassword, ctrl))
	return mux
}

// webhookHTTPServer wraps http.Server as an io.Closer that shuts down
// gracefully instead of dropping in-flight requests.
type webhookHTTPServer struct {
	addr    string
	handler http.Handler
	srv     *http.Server
}

func (s *webhookHTTPServer) start() {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("webhook server stopped", err)
		}
	}()
}

func (s *webhookHTTPServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
