package queue

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrQueueClosed = errors.New("task queue is closed")

// Task is a deferred unit of work. Tasks must carry everything they need;
// they run on a worker goroutine, not on the producer's.
type Task func(ctx context.Context)

// TaskQueue is a bounded buffer of deferred tasks. Enqueue blocks the
// producer when the buffer is full, which is the system's backpressure
// mechanism: producers slow down instead of work being dropped.
type TaskQueue struct {
	tasks  chan Task
	logger *zap.Logger
	wg     sync.WaitGroup
}

func New(capacity int, logger *zap.Logger) *TaskQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &TaskQueue{
		tasks:  make(chan Task, capacity),
		logger: logger,
	}
}

// Enqueue blocks until the task is buffered or ctx is done.
func (q *TaskQueue) Enqueue(ctx context.Context, task Task) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a task is available or ctx is done.
func (q *TaskQueue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case task := <-q.tasks:
		return task, nil
	case <-ctx.Done():
		return nil, ErrQueueClosed
	}
}

// Start launches the worker loops. Each dequeued task runs in isolation: a
// panic inside one task is recovered and logged without stopping the loop.
// Queued-but-unexecuted tasks are not preserved across shutdown.
func (q *TaskQueue) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func(id int) {
			defer q.wg.Done()
			for {
				task, err := q.Dequeue(ctx)
				if err != nil {
					q.logger.Info("worker stopping", zap.Int("worker", id))
					return
				}
				q.run(ctx, task)
			}
		}(i)
	}
}

// Wait blocks until every worker loop has exited.
func (q *TaskQueue) Wait() {
	q.wg.Wait()
}

func (q *TaskQueue) Len() int {
	return len(q.tasks)
}

func (q *TaskQueue) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("panic executing queued task", zap.Any("panic", r))
		}
	}()
	task(ctx)
}
