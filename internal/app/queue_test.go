package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/beacons/internal/domain"
)

func startQueue(t *testing.T) (*Queue, context.CancelFunc, <-chan error) {
	t.Helper()
	q := NewQueue(&mockLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	t.Cleanup(cancel)
	return q, cancel, done
}

func TestQueue_RunsInOrder(t *testing.T) {
	q, _, _ := startQueue(t)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		q.Post(func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, q.Do(context.Background(), func(context.Context) error { return nil }))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestQueue_DoReturnsTaskError(t *testing.T) {
	q, _, _ := startQueue(t)
	want := errors.New("boom")

	err := q.Do(context.Background(), func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}

func TestQueue_PostFromWorkerRunsAfterCurrentTask(t *testing.T) {
	q, _, _ := startQueue(t)

	var steps []string
	err := q.Do(context.Background(), func(context.Context) error {
		q.Post(func(context.Context) error {
			steps = append(steps, "follow-up")
			return nil
		})
		steps = append(steps, "task")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, q.Do(context.Background(), func(context.Context) error { return nil }))

	assert.Equal(t, []string{"task", "follow-up"}, steps)
}

func TestQueue_DoAfterStop(t *testing.T) {
	q, cancel, done := startQueue(t)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("queue did not stop")
	}

	err := q.Do(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotRunning)
}

func TestQueue_DoHonoursCallerContext(t *testing.T) {
	q := NewQueue(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}
