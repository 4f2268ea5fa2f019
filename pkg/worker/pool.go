// Package worker runs submitted jobs on a fixed set of goroutines fed from a
// single unbounded FIFO queue.
package worker

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/eapache/queue"

	"tableorders/pkg/logger"
	"tableorders/pkg/metrics"
)

// DefaultWorkers is used when Config.Workers is not positive.
const DefaultWorkers = 4

var (
	// ErrClosed is returned by Submit after Close has been called.
	ErrClosed = errors.New("worker pool closed")
	// ErrPanic marks errors produced from a recovered job panic.
	ErrPanic = errors.New("job panicked")
)

// Job is one unit of work. It runs to completion once started.
type Job func(ctx context.Context) error

// Config sizes the pool. Logger and Metrics may be nil.
type Config struct {
	Workers int
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Pool is a fixed-size worker pool. Submit never blocks on job execution and
// never drops a job; the backlog grows without bound.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	jobs   *queue.Queue
	closed bool

	wg      sync.WaitGroup
	log     *logger.Logger
	metrics *metrics.Metrics
	size    int
}

// New starts a pool with cfg.Workers goroutines.
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	p := &Pool{
		jobs:    queue.New(),
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		size:    cfg.Workers,
	}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(cfg.Workers)
	for id := range cfg.Workers {
		go p.run(id)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit enqueues job and returns immediately.
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.jobs.Add(job)
	p.metrics.JobSubmitted(p.jobs.Length())
	p.mu.Unlock()

	p.cond.Signal()
	return nil
}

// Len returns the number of jobs waiting for a worker.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobs.Length()
}

// Close stops accepting jobs, waits for the queue to drain and for every
// running job to finish. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	log := p.log.With("worker", id)
	for {
		job, ok := p.next()
		if !ok {
			log.Debug(context.Background(), "worker stopped")
			return
		}
		err := p.exec(log, job)
		panicked := errors.Is(err, ErrPanic)
		p.metrics.JobCompleted(panicked)
		if err != nil && !panicked {
			log.Error(context.Background(), "job failed", "error", err)
		}
	}
}

// next blocks until a job is available. It reports false once the pool is
// closed and the queue is empty. The depth gauge is updated under p.mu so it
// always reflects the latest queue length.
func (p *Pool) next() (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.jobs.Length() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.jobs.Length() == 0 {
		return nil, false
	}
	job := p.jobs.Remove().(Job)
	p.metrics.JobStarted(p.jobs.Length())
	return job, true
}

// exec runs job, turning a panic into an error carrying the stack.
func (p *Pool) exec(log *logger.Logger, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Mark(errors.Newf("%v", r), ErrPanic)
			log.Error(context.Background(), "recovered job panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return job(context.Background())
}
