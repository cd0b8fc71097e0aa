package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/wafflemaker/pkg/log"
	"github.com/cuemby/wafflemaker/pkg/types"
)

// mailboxSize bounds how many pending jobs a single service's actor will
// buffer before Enqueue blocks.
const mailboxSize = 64

// Handler processes a single job. It is invoked at most once at a time
// per service.
type Handler func(ctx context.Context, job types.Job)

// actor is one service's serialized job mailbox.
type actor struct {
	mailbox chan types.Job
}

// Queue is the per-service FIFO job queue and bounded worker pool (§4.2).
type Queue struct {
	handler Handler
	sem     chan struct{}

	mu      sync.Mutex
	actors  map[string]*actor
	stopped bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Queue that runs handler for each job, bounding total
// concurrent handler executions to workers.
func New(workers int, handler Handler) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		handler: handler,
		sem:     make(chan struct{}, workers),
		actors:  make(map[string]*actor),
		stopCh:  make(chan struct{}),
	}
}

// Enqueue appends job to its service's mailbox. It is a no-op once Stop
// has been called.
func (q *Queue) Enqueue(job types.Job) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		log.WithServiceID(job.ServiceID).Warn().Msg("dropping job enqueued after shutdown")
		return
	}
	a, ok := q.actors[job.ServiceID]
	if !ok {
		a = &actor{mailbox: make(chan types.Job, mailboxSize)}
		q.actors[job.ServiceID] = a
		q.wg.Add(1)
		go q.runActor(job.ServiceID, a)
	}
	q.mu.Unlock()

	a.mailbox <- job
}

// runActor drains its mailbox in FIFO order, one job at a time, and exits
// once the mailbox is empty and Stop has been called. Mailbox reads are
// checked non-blockingly first so a pending backlog always finishes
// before the actor honors shutdown.
func (q *Queue) runActor(serviceID string, a *actor) {
	defer q.wg.Done()

	for {
		select {
		case job := <-a.mailbox:
			q.process(job)
			continue
		default:
		}

		select {
		case job := <-a.mailbox:
			q.process(job)
		case <-q.stopCh:
			return
		}
	}
}

func (q *Queue) process(job types.Job) {
	q.sem <- struct{}{}
	defer func() { <-q.sem }()
	q.handler(context.Background(), job)
}

// Stop stops accepting new jobs and waits for in-flight jobs to finish,
// up to ctx's deadline.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	close(q.stopCh)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue shutdown: %w", ctx.Err())
	}
}
