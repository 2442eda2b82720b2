package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestTaskQueueRunsAllTasks(t *testing.T) {
	q := NewTaskQueue(2, 32, testLogger())
	defer q.Close()

	var done int64
	for i := 0; i < 20; i++ {
		q.Enqueue("increment", func(ctx context.Context) error {
			atomic.AddInt64(&done, 1)
			return nil
		})
	}
	q.Drain()

	if got := atomic.LoadInt64(&done); got != 20 {
		t.Errorf("completed tasks = %d, want 20", got)
	}
}

func TestTaskQueueFailuresDoNotStopWorkers(t *testing.T) {
	q := NewTaskQueue(1, 8, testLogger())
	defer q.Close()

	var done int64
	q.Enqueue("failing", func(ctx context.Context) error {
		return errors.New("boom")
	})
	q.Enqueue("after failure", func(ctx context.Context) error {
		atomic.AddInt64(&done, 1)
		return nil
	})
	q.Drain()

	if atomic.LoadInt64(&done) != 1 {
		t.Error("task after a failure never ran")
	}
}

func TestTaskQueueFullDropsWithoutBlocking(t *testing.T) {
	q := NewTaskQueue(1, 1, testLogger())
	defer q.Close()

	gate := make(chan struct{})
	q.Enqueue("blocker", func(ctx context.Context) error {
		<-gate
		return nil
	})

	// One task fits the buffer; the rest must be dropped, not block Enqueue.
	for i := 0; i < 10; i++ {
		q.Enqueue("overflow", func(ctx context.Context) error { return nil })
	}
	close(gate)
	q.Drain()
}

func TestTaskQueueCloseIsIdempotent(t *testing.T) {
	q := NewTaskQueue(1, 4, testLogger())
	q.Enqueue("noop", func(ctx context.Context) error { return nil })
	q.Close()
	q.Close()
}
