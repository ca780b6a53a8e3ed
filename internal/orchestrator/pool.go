package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"card-recon-engine/pkg/logger"
)

// Task is a unit of background work submitted to the pool.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool is a bounded worker pool for batch executions. Triggering a batch is
// fire-and-forget from the caller's point of view, but every execution runs
// under a supervised worker so failures are logged and the single-flight
// guard in the orchestrator stays enforceable; nothing runs on a detached,
// unsupervised goroutine.
type Pool struct {
	tasks chan Task
	wg    sync.WaitGroup
	log   logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool starts a pool with the given number of workers and queue capacity.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}

	p := &Pool{
		tasks: make(chan Task, queueSize),
		log:   logger.GetGlobalLogger().WithComponent("worker_pool"),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for task := range p.tasks {
		if err := task.Run(context.Background()); err != nil {
			p.log.WithError(err).WithField("task", task.Name).Error("Background task failed")
		} else {
			p.log.WithField("task", task.Name).Debug("Background task completed")
		}
	}
}

// Submit enqueues a task. It rejects immediately when the queue is full or
// the pool is closed, so a saturated pool is visible to the caller instead of
// silently unbounded.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("worker pool is closed")
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return fmt.Errorf("worker pool queue is full")
	}
}

// Close stops accepting tasks and waits for in-flight work to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
