package dns

import (
	"context"
	"net"
	"time"

	"github.com/cuemby/wafflemaker/pkg/log"
	"github.com/cuemby/wafflemaker/pkg/wferrors"
)

// deleteRetries is the number of Delete attempts the reconciler makes
// before surfacing the failure to the caller (§4.6).
const deleteRetries = 3

// deleteRetryDelay separates successive Delete attempts. A var, not a
// const, so tests can shrink it.
var deleteRetryDelay = 2 * time.Second

// Reconciler drives a Provider from the service reconciliation state
// machine: Upsert on SwapDNS, Delete on RetireOld or service deletion.
type Reconciler struct {
	provider Provider
}

// NewReconciler wraps provider with the DNS reconciler's retry policy.
func NewReconciler(provider Provider) *Reconciler {
	return &Reconciler{provider: provider}
}

// Upsert points hostname at addr.
func (r *Reconciler) Upsert(ctx context.Context, hostname string, addr net.IP) error {
	if err := r.provider.Upsert(ctx, hostname, addr); err != nil {
		return wferrors.Wrap(wferrors.KindUpstream, "dns upsert", err)
	}
	return nil
}

// Delete removes hostname, making up to deleteRetries attempts before
// surfacing the last error.
func (r *Reconciler) Delete(ctx context.Context, hostname string) error {
	var lastErr error
	for attempt := 1; attempt <= deleteRetries; attempt++ {
		lastErr = r.provider.Delete(ctx, hostname)
		if lastErr == nil {
			return nil
		}

		log.WithComponent("dns.reconciler").Warn().
			Err(lastErr).
			Str("hostname", hostname).
			Int("attempt", attempt).
			Msg("dns delete failed")

		if attempt < deleteRetries {
			select {
			case <-time.After(deleteRetryDelay):
			case <-ctx.Done():
				return wferrors.Wrap(wferrors.KindTransient, "dns delete cancelled", ctx.Err())
			}
		}
	}
	return wferrors.Wrap(wferrors.KindUpstream, "dns delete exhausted retries for "+hostname, lastErr)
}
