// Package taskrunner executes pipeline invocations off the caller's
// goroutine on a bounded worker pool. Under saturation the submitting caller
// runs the task inline, so memory stays bounded and every task eventually
// runs.
package taskrunner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const extraWorkerIdleTimeout = 30 * time.Second

// Runner is a worker pool with a fixed core, a burst ceiling, and a bounded
// queue. Submission never blocks and never rejects.
type Runner struct {
	queue    chan func()
	maxExtra int32
	extra    atomic.Int32
	logger   *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// New starts coreWorkers goroutines consuming a queue of queueDepth tasks.
// When the queue is full, up to maxWorkers-coreWorkers burst workers are
// spawned; beyond that the caller runs the task itself.
func New(coreWorkers, maxWorkers, queueDepth int, logger *zap.Logger) *Runner {
	if coreWorkers < 1 {
		coreWorkers = 1
	}
	if maxWorkers < coreWorkers {
		maxWorkers = coreWorkers
	}
	r := &Runner{
		queue:    make(chan func(), queueDepth),
		maxExtra: int32(maxWorkers - coreWorkers),
		logger:   logger.Named("task_runner"),
		done:     make(chan struct{}),
	}
	for i := 0; i < coreWorkers; i++ {
		go r.coreWorker()
	}
	r.logger.Info("task runner started",
		zap.Int("core_workers", coreWorkers),
		zap.Int("max_workers", maxWorkers),
		zap.Int("queue_depth", queueDepth))
	return r
}

func (r *Runner) coreWorker() {
	for {
		select {
		case task := <-r.queue:
			task()
		case <-r.done:
			return
		}
	}
}

func (r *Runner) extraWorker(first func()) {
	defer r.extra.Add(-1)
	first()
	idle := time.NewTimer(extraWorkerIdleTimeout)
	defer idle.Stop()
	for {
		select {
		case task := <-r.queue:
			task()
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(extraWorkerIdleTimeout)
		case <-idle.C:
			return
		case <-r.done:
			return
		}
	}
}

// Submit schedules task on the pool. When the queue is full and the burst
// ceiling is reached, the task runs on the calling goroutine before Submit
// returns (caller-runs backpressure).
func (r *Runner) Submit(task func()) {
	select {
	case r.queue <- task:
		return
	default:
	}
	for {
		n := r.extra.Load()
		if n >= r.maxExtra {
			break
		}
		if r.extra.CompareAndSwap(n, n+1) {
			go r.extraWorker(task)
			return
		}
	}
	r.logger.Debug("pool saturated, running task on caller")
	task()
}

// Close stops the workers. Tasks already queued may be dropped; drain callers
// before closing. Submit must not be called after Close.
func (r *Runner) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

type outcome[T any] struct {
	value T
	err   error
}

// Future resolves to the result of a submitted task.
type Future[T any] struct {
	ch chan outcome[T]
}

// Submit runs fn on the pool and returns a future for its result.
func Submit[T any](r *Runner, fn func() (T, error)) *Future[T] {
	f := &Future[T]{ch: make(chan outcome[T], 1)}
	r.Submit(func() {
		value, err := fn()
		f.ch <- outcome[T]{value: value, err: err}
	})
	return f
}

// Wait blocks until the task completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case result := <-f.ch:
		return result.value, result.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
