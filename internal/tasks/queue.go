// Package tasks runs best-effort work after a request has committed.
// A task failure is logged and never reaches the request that queued it.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrClosed = errors.New("task queue closed")

type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Dispatcher is the side of the queue request handlers see.
type Dispatcher interface {
	Dispatch(t Task) bool
}

type Queue struct {
	jobs    chan Task
	workers int
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewQueue(workers, size int, timeout time.Duration, logger *slog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	return &Queue{
		jobs:    make(chan Task, size),
		workers: workers,
		timeout: timeout,
		logger:  logger.With("component", "tasks"),
	}
}

func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
}

// Dispatch enqueues t without blocking. It reports false when the queue is
// full or closed; the task is dropped.
func (q *Queue) Dispatch(t Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("task dropped, queue closed", "task", t.Name)
		return false
	}
	select {
	case q.jobs <- t:
		return true
	default:
		q.logger.Warn("task dropped, queue full", "task", t.Name)
		return false
	}
}

// Shutdown stops intake and waits for queued tasks until ctx is done.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrClosed, ctx.Err())
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for t := range q.jobs {
		q.run(t)
	}
}

func (q *Queue) run(t Task) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", "task", t.Name, "panic", r)
		}
	}()

	start := time.Now()
	if err := t.Run(ctx); err != nil {
		q.logger.Error("task failed", "task", t.Name, "error", err, "duration", time.Since(start))
		return
	}
	q.logger.Debug("task done", "task", t.Name, "duration", time.Since(start))
}

var _ Dispatcher = (*Queue)(nil)
