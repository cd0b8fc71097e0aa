// Package webhook implements the two push-triggered HTTP adapters of §6:
// a source-repository webhook (HMAC-SHA256 signed) and an image-registry
// webhook (HTTP Basic authenticated). Both are thin: they validate the
// request, decode its body, and hand off to a Controller. Neither talks to
// the Planner, Queue, or git checkout directly.
package webhook

import "context"

// Controller is the narrow surface webhook handlers drive. internal/app
// implements it: a push re-fetches the source checkout to after and runs
// the Planner; an image update enumerates matching services per §4.7's
// last section and enqueues a Reconcile for each.
type Controller interface {
	TriggerPush(ctx context.Context, before, after string) error
	TriggerImageUpdate(ctx context.Context, repo, tag string) error
}
