// Package workerpool provides a bounded goroutine pool for running a stage's
// independent sub-tasks. At most Cap tasks run at any moment.
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool manages a fixed number of worker goroutines.
type Pool struct {
	workers int
	tasks   chan func()
	closed  atomic.Bool
	once    sync.Once
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// New creates a pool with the given number of workers. Workers are started
// lazily on the first Submit.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		workers: workers,
		tasks:   make(chan func()),
	}
}

func (p *Pool) start() {
	p.once.Do(func() {
		for range p.workers {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Submit queues task and blocks until a worker accepts it.
// Returns false if the pool is closed.
func (p *Pool) Submit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		return false
	}
	p.start()
	p.tasks <- task
	return true
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

// run executes one task; a panicking task does not take the worker down.
func (p *Pool) run(task func()) {
	if task == nil {
		return
	}
	defer func() { _ = recover() }()
	task()
}

// Cap returns the worker capacity.
func (p *Pool) Cap() int { return p.workers }

// Close waits for queued tasks to finish and stops the workers.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return
	}
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// Map applies fn to each item on the pool and returns results in order.
// Items submitted after the pool closes keep their zero value.
func Map[T, R any](p *Pool, items []T, fn func(T) R) []R {
	results := make([]R, len(items))
	var wg sync.WaitGroup
	wg.Add(len(items))

	for i, item := range items {
		if !p.Submit(func() {
			defer wg.Done()
			results[i] = fn(item)
		}) {
			wg.Done()
		}
	}

	wg.Wait()
	return results
}
