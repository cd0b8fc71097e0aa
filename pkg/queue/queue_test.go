package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/wafflemaker/pkg/types"
)

func TestQueue_PerServiceFIFOOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string

	q := New(4, func(ctx context.Context, job types.Job) {
		mu.Lock()
		order = append(order, job.Reason)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	})

	for i := 0; i < 5; i++ {
		q.Enqueue(types.Job{ServiceID: "svc-a", Reason: fmt.Sprint(i)})
	}

	require.NoError(t, q.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 5)
	for i, v := range order {
		assert.Equal(t, fmt.Sprint(i), v)
	}
}

func TestQueue_DifferentServicesRunConcurrently(t *testing.T) {
	var active int32
	var maxActive int32
	var mu sync.Mutex

	q := New(4, func(ctx context.Context, job types.Job) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
	})

	for i := 0; i < 4; i++ {
		q.Enqueue(types.Job{ServiceID: fmt.Sprintf("svc-%d", i)})
	}

	require.NoError(t, q.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, maxActive, int32(1))
}

func TestQueue_SameServiceNeverRunsConcurrently(t *testing.T) {
	var active int32
	var sawOverlap bool
	var mu sync.Mutex

	q := New(8, func(ctx context.Context, job types.Job) {
		mu.Lock()
		active++
		if active > 1 {
			sawOverlap = true
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		q.Enqueue(types.Job{ServiceID: "svc-a"})
	}

	require.NoError(t, q.Stop(context.Background()))
	assert.False(t, sawOverlap)
}

func TestQueue_StopDrainsPendingJobs(t *testing.T) {
	var processed int32
	var mu sync.Mutex

	q := New(2, func(ctx context.Context, job types.Job) {
		mu.Lock()
		processed++
		mu.Unlock()
	})

	for i := 0; i < 20; i++ {
		q.Enqueue(types.Job{ServiceID: fmt.Sprintf("svc-%d", i%3)})
	}

	require.NoError(t, q.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(20), processed)
}

func TestQueue_EnqueueAfterStopIsNoOp(t *testing.T) {
	q := New(1, func(ctx context.Context, job types.Job) {})
	require.NoError(t, q.Stop(context.Background()))
	q.Enqueue(types.Job{ServiceID: "svc-a"})
}
