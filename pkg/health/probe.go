package health

import (
	"context"
	"time"
)

// backoffSchedule is the HealthProbe polling backoff (§4.7 state 6):
// 1s, 2s, 4s, 8s, 15s, then 15s repeating, up to the 120s ceiling.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	15 * time.Second,
}

// ProbeCeiling is the hard timeout after which a HealthProbe gives up and
// the Reconciler transitions to Rollback.
const ProbeCeiling = 120 * time.Second

// noCheckSuccessesNeeded is the number of consecutive 1s polls of
// running=true required to call a service healthy when it declares no
// checker (§9 open question).
const noCheckSuccessesNeeded = 3

// RunningProber reports a container's coarse run state without an
// application-level health check. Probe uses it to implement the "no
// healthcheck" rule when no Checker is configured.
type RunningProber interface {
	Running(ctx context.Context) (bool, error)
}

// Probe polls checker with the backoff schedule until it reports healthy,
// ctx is cancelled, or the ceiling elapses. If checker is nil, it falls
// back to polling runner every second and requires noCheckSuccessesNeeded
// consecutive running=true observations.
func Probe(ctx context.Context, checker Checker, runner RunningProber) (bool, error) {
	if checker != nil {
		return probeChecker(ctx, checker)
	}
	return probeRunning(ctx, runner)
}

func probeChecker(ctx context.Context, checker Checker) (bool, error) {
	deadline := time.Now().Add(ProbeCeiling)
	attempt := 0

	for {
		result := checker.Check(ctx)
		if result.Healthy {
			return true, nil
		}

		if time.Now().After(deadline) {
			return false, nil
		}

		wait := backoffSchedule[len(backoffSchedule)-1]
		if attempt < len(backoffSchedule) {
			wait = backoffSchedule[attempt]
		}
		attempt++

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func probeRunning(ctx context.Context, runner RunningProber) (bool, error) {
	deadline := time.Now().Add(ProbeCeiling)
	consecutive := 0

	for {
		running, err := runner.Running(ctx)
		if err != nil {
			return false, err
		}

		if running {
			consecutive++
			if consecutive >= noCheckSuccessesNeeded {
				return true, nil
			}
		} else {
			consecutive = 0
		}

		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
