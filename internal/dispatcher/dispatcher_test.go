// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
	queuemem "github.com/JakeFAU/pagewatch/internal/queue/memory"
	"github.com/JakeFAU/pagewatch/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(worker.Dependencies{Queue: queue}, worker.Config{}, zap.NewNop())
	dispatch := New(queue, []*worker.Worker{w})
	require.Equal(t, 1, dispatch.Workers())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil)

	err := dispatch.Enqueue(context.Background(), monitor.CheckJob{TargetID: "t1"})
	require.EqualError(t, err, "queue enqueue: boom")
}

func TestDispatcherEnqueueReachesQueue(t *testing.T) {
	t.Parallel()

	queue := queuemem.NewQueue(2)
	dispatch := New(queue, nil)
	require.NoError(t, dispatch.Enqueue(context.Background(), monitor.CheckJob{TargetID: "t1", Attempt: 1}))
	require.Equal(t, 1, queue.Len())

	queue.Close()
	require.ErrorIs(t, dispatch.Enqueue(context.Background(), monitor.CheckJob{TargetID: "t2"}), queuemem.ErrClosed)
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ monitor.CheckJob) error {
	select {
	case q.started <- struct{}{}:
	default:
	}
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (monitor.CheckJob, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return monitor.CheckJob{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, monitor.CheckJob) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (monitor.CheckJob, error) {
	return monitor.CheckJob{}, nil
}
