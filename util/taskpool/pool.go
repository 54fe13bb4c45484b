// Package taskpool serializes work per key: jobs submitted under the
// same key run in order on one goroutine, jobs under different keys
// run in parallel. Workers are created on demand and torn down when
// the pool stops.
package taskpool

import (
	"context"
	"sync"
)

// Job is a unit of work bound to a key.
type Job func(ctx context.Context)

// queueBuffer bounds how many jobs may be pending per key before
// Submit blocks.
const queueBuffer = 100

type keyQueue struct {
	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// TaskPool runs keyed jobs with per-key ordering. Safe for concurrent
// use.
type TaskPool struct {
	mu      sync.RWMutex
	queues  map[string]*keyQueue
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// NewTaskPool creates a stopped pool; call Start before submitting.
func NewTaskPool() *TaskPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskPool{
		queues: make(map[string]*keyQueue),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start marks the pool ready. Workers spawn lazily per key.
func (tp *TaskPool) Start() {}

// Submit queues a job under the given key. Jobs for one key execute
// serially in submission order. Submitting to a stopped pool drops
// the job.
func (tp *TaskPool) Submit(key string, job Job) {
	tp.mu.Lock()
	if tp.stopped {
		tp.mu.Unlock()
		return
	}
	queue, ok := tp.queues[key]
	if !ok {
		ctx, cancel := context.WithCancel(tp.ctx)
		queue = &keyQueue{
			jobs:   make(chan Job, queueBuffer),
			ctx:    ctx,
			cancel: cancel,
		}
		tp.queues[key] = queue
		queue.wg.Add(1)
		go tp.worker(key, queue)
	}
	tp.mu.Unlock()

	select {
	case queue.jobs <- job:
	case <-queue.ctx.Done():
	case <-tp.ctx.Done():
	}
}

func (tp *TaskPool) worker(key string, queue *keyQueue) {
	defer queue.wg.Done()
	defer func() {
		tp.mu.Lock()
		delete(tp.queues, key)
		tp.mu.Unlock()
	}()

	for {
		select {
		case <-queue.ctx.Done():
			return
		case <-tp.ctx.Done():
			return
		case job, ok := <-queue.jobs:
			if !ok {
				return
			}
			job(queue.ctx)
		}
	}
}

// Stop cancels all workers and waits for them to finish. Jobs still
// queued are discarded.
func (tp *TaskPool) Stop() {
	tp.mu.Lock()
	tp.stopped = true
	queues := make([]*keyQueue, 0, len(tp.queues))
	for _, queue := range tp.queues {
		queues = append(queues, queue)
	}
	tp.mu.Unlock()

	tp.cancel()
	for _, queue := range queues {
		queue.cancel()
	}
	for _, queue := range queues {
		queue.wg.Wait()
	}
}

// Len returns the number of live key workers.
func (tp *TaskPool) Len() int {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	return len(tp.queues)
}
