// Package workerpool implements the fixed-size set of workers draining
// a single FIFO task queue. Submission never blocks and never fails:
// the queue grows without an enforced bound (the optional admission
// control cap named in the worker-pool's design hook belongs one layer
// up, in the dispatcher, applied before a task is even built).
package workerpool

import (
	"sync"
	"sync/atomic"

	"github.com/arma-extdb/extdb-core/internal/metrics"
)

// Task is a unit of work: a closure encapsulating (handler name,
// payload, optional correlation id), built by the dispatcher.
type Task func()

// Pool is a fixed-size worker pool draining one unbounded FIFO queue.
// The queue is a plain slice behind a mutex/condvar rather than a
// buffered channel, since a channel would force a choice between a
// capacity limit (backpressure the spec rules out) or an unbounded
// goroutine-per-send workaround; a slice queue is unbounded for free
// and keeps Submit non-blocking.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []Task
	closed bool
	wg     sync.WaitGroup

	outstanding atomic.Int64
}

// New starts `workers` goroutines immediately draining the FIFO queue.
// A non-positive workers value starts a single worker; turning a
// configured 0 into the hardware concurrency is done by the config
// package's defaults, not here.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.tasks) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.tasks) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		task := p.tasks[0]
		p.tasks = p.tasks[1:]
		metrics.WorkerPoolQueueDepth.Set(float64(len(p.tasks)))
		p.mu.Unlock()

		task()
	}
}

// Submit appends t to the tail of the FIFO queue and wakes one worker.
// Never blocks the caller and never reports failure.
func (p *Pool) Submit(t Task) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.tasks = append(p.tasks, t)
	metrics.WorkerPoolQueueDepth.Set(float64(len(p.tasks)))
	p.mu.Unlock()
	p.cond.Signal()
}

// Outstanding returns the number of correlation IDs the dispatcher
// currently considers in flight (reserved but not yet delivered). The
// dispatcher owns the increment/decrement; the pool only stores the
// counter so both dispatcher and metrics can read it from one place.
func (p *Pool) Outstanding() int64 {
	return p.outstanding.Load()
}

// IncOutstanding and DecOutstanding track outstanding correlation IDs
// for the dispatcher's optional admission-control cap.
func (p *Pool) IncOutstanding() { p.outstanding.Add(1) }
func (p *Pool) DecOutstanding() { p.outstanding.Add(-1) }

// Shutdown stops accepting new work, waits for already-queued tasks to
// drain, and joins every worker.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}
