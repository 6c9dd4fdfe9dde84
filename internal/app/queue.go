package app

import (
	"context"
	"sync"

	"github.com/bft-labs/beacons/internal/domain"
	"github.com/bft-labs/beacons/pkg/log"
)

// Task is a unit of work run on the queue worker.
type Task func(ctx context.Context) error

type queued struct {
	fn   Task
	done chan error
}

// Queue serializes every beacon transition onto one worker goroutine.
// Post never blocks, so tasks running on the worker may post follow-ups.
type Queue struct {
	mu      sync.Mutex
	pending []queued
	wake    chan struct{}
	stopped chan struct{}
	logger  log.Logger
}

// NewQueue returns an idle queue. Call Run to start the worker.
func NewQueue(logger log.Logger) *Queue {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Queue{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Post appends fn to the queue without waiting for it.
func (q *Queue) Post(fn Task) {
	q.push(queued{fn: fn})
}

// Do runs fn on the worker and waits for its result. It must not be called
// from the worker itself.
func (q *Queue) Do(ctx context.Context, fn Task) error {
	done := make(chan error, 1)
	q.push(queued{fn: fn, done: done})

	select {
	case err := <-done:
		return err
	case <-q.stopped:
		return domain.ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run executes tasks in order until ctx is cancelled. Tasks still pending at
// that point are failed with domain.ErrNotRunning.
func (q *Queue) Run(ctx context.Context) error {
	defer q.shutdown()

	for {
		for {
			t, ok := q.pop()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				q.fail(t)
				continue
			}
			q.run(ctx, t)
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *Queue) run(ctx context.Context, t queued) {
	err := t.fn(ctx)
	if t.done != nil {
		t.done <- err
		return
	}
	if err != nil {
		q.logger.Warn("queued task failed", log.Err(err))
	}
}

func (q *Queue) push(t queued) {
	q.mu.Lock()
	q.pending = append(q.pending, t)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) pop() (queued, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return queued{}, false
	}
	t := q.pending[0]
	q.pending[0] = queued{}
	q.pending = q.pending[1:]
	return t, true
}

func (q *Queue) fail(t queued) {
	if t.done != nil {
		t.done <- domain.ErrNotRunning
	}
}

func (q *Queue) shutdown() {
	close(q.stopped)
	for {
		t, ok := q.pop()
		if !ok {
			return
		}
		q.fail(t)
	}
}
