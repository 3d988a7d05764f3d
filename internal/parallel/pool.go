// Package parallel runs tile work on a fixed set of goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// WorkerPool is a pool of goroutines for tile task execution.
//
// Each worker has its own queue and pulls from its front. A worker whose
// queue is empty steals from the back of another worker's queue, which
// balances load when some tasks are slower than others. Queues are
// unbounded, so work may be submitted from inside running work.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	// workers is the number of worker goroutines.
	workers int

	mu   sync.Mutex
	cond sync.Cond

	// queues holds per-worker work queues.
	queues [][]func()
	queued int

	// closed stops Submit; workers exit once all queues are empty.
	closed bool

	// wg waits for all workers to finish.
	wg sync.WaitGroup
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
// The pool starts immediately and workers begin waiting for work.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &WorkerPool{
		workers: workers,
		queues:  make([][]func(), workers),
	}
	p.cond.L = &p.mu

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}

	return p
}

// worker is the main loop for each worker goroutine.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.mu.Lock()
	for {
		work := p.takeLocked(id)
		if work == nil {
			if p.closed {
				p.mu.Unlock()
				return
			}
			p.cond.Wait()
			continue
		}
		p.mu.Unlock()
		work()
		p.mu.Lock()
	}
}

// takeLocked pops the front of the worker's own queue, or steals the back
// of another queue. Returns nil if no work is queued anywhere.
func (p *WorkerPool) takeLocked(id int) func() {
	if q := p.queues[id]; len(q) > 0 {
		work := q[0]
		q[0] = nil
		p.queues[id] = q[1:]
		p.queued--
		return work
	}
	for i := 1; i < p.workers; i++ {
		victim := (id + i) % p.workers
		q := p.queues[victim]
		if len(q) == 0 {
			continue
		}
		work := q[len(q)-1]
		q[len(q)-1] = nil
		p.queues[victim] = q[:len(q)-1]
		p.queued--
		return work
	}
	return nil
}

// Submit queues fn on the worker with the shortest queue.
// It reports false, without running fn, if the pool is closed.
func (p *WorkerPool) Submit(fn func()) bool {
	if fn == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}

	minIdx := 0
	for i := 1; i < p.workers; i++ {
		if len(p.queues[i]) < len(p.queues[minIdx]) {
			minIdx = i
		}
	}
	p.queues[minIdx] = append(p.queues[minIdx], fn)
	p.queued++
	p.cond.Signal()
	return true
}

// Close gracefully shuts down the pool.
// It stops accepting new work, waits for all queued work to complete,
// and then stops all workers.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// QueuedWork returns the number of work items queued but not yet started.
func (p *WorkerPool) QueuedWork() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queued
}
