package pipeline

import (
	"context"
	"sync"
)

// Job is a unit of work submitted to the WorkerPool.
type Job func(ctx context.Context) error

// WorkerPool runs jobs on a fixed number of goroutines. Jobs already queued
// when Close is called still run; jobs queued when the context passed to Start
// is canceled are dropped.
type WorkerPool struct {
	jobs chan Job
	// done unblocks pending submits; stop tells workers to drain and exit
	// once no submit can still enqueue.
	done    chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	workers int

	closeMu    sync.RWMutex
	closed     bool
	submitting sync.WaitGroup
}

// NewWorkerPool creates a pool with the given number of workers and queue capacity.
func NewWorkerPool(workers, queue int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers * 2
	}
	return &WorkerPool{
		jobs:    make(chan Job, queue),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
		workers: workers,
	}
}

// Start launches the workers. They exit when ctx is done or the pool is closed
// and its queue drained.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-p.jobs:
					// Job errors are reported through the job's own channels.
					_ = job(ctx)
				case <-p.stop:
					p.drain(ctx)
					return
				}
			}
		}()
	}
}

func (p *WorkerPool) drain(ctx context.Context) {
	for {
		select {
		case job := <-p.jobs:
			_ = job(ctx)
		default:
			return
		}
	}
}

// Submit enqueues a job, blocking while the queue is full. It returns
// ErrPoolClosed if the pool is closed before the job is accepted.
func (p *WorkerPool) Submit(job Job) error {
	return p.SubmitCtx(context.Background(), job)
}

// SubmitCtx is Submit that gives up with ctx.Err() when ctx is done first.
func (p *WorkerPool) SubmitCtx(ctx context.Context, job Job) error {
	p.closeMu.RLock()
	if p.closed {
		p.closeMu.RUnlock()
		return ErrPoolClosed
	}
	p.submitting.Add(1)
	p.closeMu.RUnlock()
	defer p.submitting.Done()

	select {
	case p.jobs <- job:
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for the workers to finish. Every job
// whose Submit returned nil has run by the time Close returns, unless the
// context passed to Start was canceled.
func (p *WorkerPool) Close() {
	p.closeMu.Lock()
	first := !p.closed
	if first {
		p.closed = true
		close(p.done)
	}
	p.closeMu.Unlock()

	if first {
		p.submitting.Wait()
		close(p.stop)
	}
	p.wg.Wait()
}

// ErrPoolClosed is returned if a Submit is attempted after Close.
var ErrPoolClosed = &PoolError{"worker pool closed"}

// PoolError provides a simple typed error for pool operations.
type PoolError struct{ msg string }

func (e *PoolError) Error() string { return e.msg }
