package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedChecker struct {
	results []Result
	calls   int
}

func (s *scriptedChecker) Check(ctx context.Context) Result {
	r := s.results[s.calls]
	if s.calls < len(s.results)-1 {
		s.calls++
	}
	return r
}

func (s *scriptedChecker) Type() CheckType { return CheckTypeHTTP }

func TestProbe_CheckerEventuallyHealthy(t *testing.T) {
	checker := &scriptedChecker{results: []Result{
		{Healthy: false},
		{Healthy: false},
		{Healthy: true},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	healthy, err := Probe(ctx, checker, nil)
	require.NoError(t, err)
	assert.True(t, healthy)
}

type scriptedRunner struct {
	running []bool
	calls   int
}

func (s *scriptedRunner) Running(ctx context.Context) (bool, error) {
	v := s.running[s.calls]
	if s.calls < len(s.running)-1 {
		s.calls++
	}
	return v, nil
}

func TestProbe_NoCheckerRequiresThreeConsecutiveRunning(t *testing.T) {
	runner := &scriptedRunner{running: []bool{true, false, true, true, true}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	healthy, err := Probe(ctx, nil, runner)
	require.NoError(t, err)
	assert.True(t, healthy)
}

func TestProbe_ContextCancelled(t *testing.T) {
	checker := &scriptedChecker{results: []Result{{Healthy: false}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Probe(ctx, checker, nil)
	require.Error(t, err)
}
