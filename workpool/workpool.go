// Package workpool runs tasks on a fixed set of goroutines, each task under
// a governor permit.
//
// The pool bounds goroutines; the governor bounds admitted work. A pool with
// more workers than MaxConcurrentOperations simply has idle workers waiting
// for permits.
package workpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/governor"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("workpool: closed")

// Task is one unit of governed work. ctx is the context passed to Submit.
type Task func(ctx context.Context) error

type job struct {
	ctx  context.Context
	task Task
}

type options struct {
	queueSize int
	onError   func(error)
	logger    *governor.Logger
}

// Option configures a Pool.
type Option func(*options)

// WithQueueSize sets the submit buffer. The default is twice the worker count.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.queueSize = n
		}
	}
}

// WithOnError sets a hook that receives every non-nil task or admission
// error. It is called from worker goroutines.
func WithOnError(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithLogger sets the logger for task failures.
func WithLogger(l *governor.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Pool manages a fixed pool of goroutines that run governed tasks.
type Pool struct {
	g          *governor.Governor
	numWorkers int
	workCh     chan job
	wg         sync.WaitGroup
	closed     atomic.Bool
	submitMu   sync.RWMutex
	onError    func(error)
	logger     *governor.Logger

	completed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a pool with numWorkers goroutines bound to g.
// numWorkers <= 0 means runtime.GOMAXPROCS(0).
func New(g *governor.Governor, numWorkers int, opts ...Option) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	o := options{
		queueSize: numWorkers * 2,
		logger:    governor.NoopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pool{
		g:          g,
		numWorkers: numWorkers,
		workCh:     make(chan job, o.queueSize),
		onError:    o.onError,
		logger:     o.logger.WithComponent("workpool"),
	}

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.worker()
	}

	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.numWorkers
}

func (p *Pool) worker() {
	defer p.wg.Done()

	// Range drains queued jobs after Close.
	for j := range p.workCh {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	err := p.g.Run(j.ctx, func(ctx context.Context, _ *governor.Permit) error {
		return j.task(ctx)
	})
	if err == nil {
		p.completed.Add(1)
		return
	}

	p.failed.Add(1)
	p.logger.DebugContext(j.ctx, "task failed", "error", err)

	if p.onError != nil {
		p.onError(err)
	}
}

// Submit enqueues task. It blocks while the queue is full.
//
// Error conditions:
//   - ErrPoolClosed if the pool is closed
//   - ctx.Err() if ctx is done before the task is enqueued
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- job{ctx: ctx, task: task}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports how many tasks finished with and without error.
func (p *Pool) Stats() (completed, failed uint64) {
	return p.completed.Load(), p.failed.Load()
}

// Close stops accepting tasks, runs every queued task and waits for the
// workers to exit. It is idempotent.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.submitMu.Lock()
	close(p.workCh)
	p.submitMu.Unlock()

	p.wg.Wait()
}
