package service

import (
	"context"
	"sync"
	"time"

	"github.com/mirella/binsight/internal/logger"
)

// Task is one named background unit of work. Tasks run detached from the
// request that enqueued them: a caller disconnect does not cancel cache
// writes or event logging.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// TaskQueue executes fire-and-forget side effects (cache writes, event
// logging, thumbnail uploads) off the response path. Tests enqueue through
// the same interface and call Drain to assert on completed work without
// racing the response.
type TaskQueue struct {
	tasks   chan Task
	workers sync.WaitGroup
	pending sync.WaitGroup
	log     *logger.Logger

	closeOnce sync.Once
}

// NewTaskQueue creates a queue and starts its workers.
// Parameters:
//   - workers: number of worker goroutines; minimum 1.
//   - queueSize: channel buffer; minimum 1.
//   - log: structured logger for task failures.
//
// Returns:
//   - *TaskQueue: running queue.
func NewTaskQueue(workers, queueSize int, log *logger.Logger) *TaskQueue {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	q := &TaskQueue{
		tasks: make(chan Task, queueSize),
		log:   log,
	}
	for i := 0; i < workers; i++ {
		q.workers.Add(1)
		go q.worker()
	}
	return q
}

func (q *TaskQueue) worker() {
	defer q.workers.Done()
	for task := range q.tasks {
		start := time.Now()
		if err := task.Run(context.Background()); err != nil {
			q.log.WithError(err).WithFields(logger.Fields{
				"task":                 task.Name,
				logger.FieldDurationMs: time.Since(start).Milliseconds(),
			}).Warn("Background task failed")
		}
		q.pending.Done()
	}
}

// Enqueue submits a task without blocking. When the queue is full the task
// is dropped with a warning: every enqueued side effect is best-effort by
// contract, and the response path must never wait on it.
func (q *TaskQueue) Enqueue(name string, fn func(ctx context.Context) error) {
	q.pending.Add(1)
	select {
	case q.tasks <- Task{Name: name, Run: fn}:
	default:
		q.pending.Done()
		q.log.WithField("task", name).Warn("Task queue full, dropping task")
	}
}

// Drain blocks until every task enqueued so far has finished. Intended for
// tests and shutdown.
func (q *TaskQueue) Drain() {
	q.pending.Wait()
}

// Close drains the queue and stops the workers.
func (q *TaskQueue) Close() {
	q.closeOnce.Do(func() {
		q.pending.Wait()
		close(q.tasks)
		q.workers.Wait()
	})
}
