// Package pool runs units of work on a fixed set of worker goroutines fed from one FIFO queue.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"barreplay/internal/metrics"
)

var (
	// ErrPoolClosed is returned by Submit once Shutdown has been called.
	ErrPoolClosed = errors.New("pool closed")
	// ErrDiscarded resolves futures whose unit was dropped by Shutdown(false).
	ErrDiscarded = errors.New("unit discarded on shutdown")
)

// Task is a unit of work executed by a worker.
type Task func() (any, error)

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("task panicked: %v", e.Value) }

// Future is the caller's handle to the outcome of one submitted task.
type Future struct {
	done  chan struct{}
	value any
	err   error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func (f *Future) resolve(value any, err error) {
	f.value, f.err = value, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type job struct {
	task   Task
	future *Future
}

// Stats counts pool activity since construction.
type Stats struct {
	Workers   int
	Submitted int
	Completed int
	Discarded int
}

// Pool is a bounded worker pool. At most Workers tasks execute at any time.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []job
	closing bool
	stats   Stats
	wg      sync.WaitGroup
	log     zerolog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger attaches a logger for lifecycle events.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pool) { p.log = log }
}

// New starts a pool with the given number of workers; non-positive means runtime.NumCPU().
func New(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{log: zerolog.Nop()}
	p.cond = sync.NewCond(&p.mu)
	p.stats.Workers = workers
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	p.log.Debug().Int("workers", workers).Msg("pool started")
	return p
}

// Submit enqueues a task and returns its future.
func (p *Pool) Submit(task Task) (*Future, error) {
	if task == nil {
		return nil, errors.New("nil task")
	}
	f := newFuture()

	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.queue = append(p.queue, job{task: task, future: f})
	p.stats.Submitted++
	p.mu.Unlock()

	p.cond.Signal()
	metrics.PoolTasksTotal.WithLabelValues("submitted").Inc()
	return f, nil
}

// Shutdown stops accepting work and waits for every worker to exit.
// With drain set, queued tasks run first; otherwise they resolve with ErrDiscarded.
// Running tasks always finish. Calling Shutdown more than once is safe.
func (p *Pool) Shutdown(drain bool) {
	p.mu.Lock()
	if !p.closing {
		p.closing = true
		if !drain {
			for _, j := range p.queue {
				j.future.resolve(nil, ErrDiscarded)
				p.stats.Discarded++
				metrics.PoolTasksTotal.WithLabelValues("discarded").Inc()
			}
			p.queue = nil
		}
	}
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
	p.log.Debug().Bool("drain", drain).Msg("pool stopped")
}

// Stats returns a copy of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closing {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue[0] = job{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		value, err := run(j.task)
		j.future.resolve(value, err)

		p.mu.Lock()
		p.stats.Completed++
		p.mu.Unlock()
		metrics.PoolTasksTotal.WithLabelValues("completed").Inc()
	}
}

func run(task Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, &PanicError{Value: r}
		}
	}()
	return task()
}
