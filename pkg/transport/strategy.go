package transport

import (
	"context"
	"sync"
	"sync/atomic"
)

// Strategy decides which goroutine runs the processor for an event.
//
// ExecuteEvent runs the processor for event and calls listener exactly
// once with the outcome. It returns an error only when the event could
// not be scheduled, in which case the listener is not called.
type Strategy interface {
	ExecuteEvent(conn *Connection, event IOEvent, listener LifecycleListener) error
}

// StrategyKind names a built-in strategy.
type StrategyKind string

const (
	// StrategyWorker runs events on a bounded worker pool.
	StrategyWorker StrategyKind = "worker"

	// StrategySameThread runs events on the dispatching goroutine.
	StrategySameThread StrategyKind = "same-thread"
)

// SameThreadStrategy runs the processor on the calling goroutine,
// which is normally a selector loop.
type SameThreadStrategy struct {
	processor Processor
}

// NewSameThreadStrategy creates a SameThreadStrategy.
func NewSameThreadStrategy(p Processor) *SameThreadStrategy {
	return &SameThreadStrategy{processor: p}
}

// ExecuteEvent runs the processor inline. Reregister runs it again on
// the same goroutine.
func (s *SameThreadStrategy) ExecuteEvent(conn *Connection, event IOEvent, listener LifecycleListener) error {
	t := newTask(conn, event, listener)
	for !t.step(s.processor) {
	}
	return nil
}

// WorkerStrategy runs the processor on a fixed pool of goroutines fed
// by a bounded queue. When the queue is full the event runs on the
// calling goroutine instead of blocking it. Reregister puts the event
// back on the queue.
//
// Events are accepted from construction on and wait in the queue until
// Run starts the pool. Once Run has seen its context end, ExecuteEvent
// fails with ErrTransportNotRunning.
type WorkerStrategy struct {
	processor Processor
	workers   int
	tasks     chan *task
	started   atomic.Bool

	mu      sync.RWMutex
	stopped bool
}

// NewWorkerStrategy creates a pool of workers goroutines with the given
// queue capacity. Run must be called to start the pool.
func NewWorkerStrategy(p Processor, workers, queueSize int) *WorkerStrategy {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerStrategy{
		processor: p,
		workers:   workers,
		tasks:     make(chan *task, queueSize),
	}
}

// Workers returns the pool size.
func (s *WorkerStrategy) Workers() int {
	return s.workers
}

// Run starts the workers and blocks until ctx is done. Events still
// queued at shutdown run on the goroutine calling Run, so every
// listener hears its outcome.
func (s *WorkerStrategy) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrTransportRunning
	}

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-s.tasks:
					s.run(t)
				}
			}
		}()
	}
	<-ctx.Done()

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	wg.Wait()

	for {
		select {
		case t := <-s.tasks:
			s.run(t)
		default:
			return nil
		}
	}
}

// ExecuteEvent queues the event for a worker.
func (s *WorkerStrategy) ExecuteEvent(conn *Connection, event IOEvent, listener LifecycleListener) error {
	return s.submit(newTask(conn, event, listener), false)
}

// submit queues t, or runs it here when the queue is full. A requeued
// task is never rejected: after stop it runs on the calling goroutine.
func (s *WorkerStrategy) submit(t *task, requeue bool) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		if !requeue {
			return ErrTransportNotRunning
		}
		s.run(t)
		return nil
	}
	select {
	case s.tasks <- t:
		s.mu.RUnlock()
		return nil
	default:
	}
	s.mu.RUnlock()
	s.run(t)
	return nil
}

func (s *WorkerStrategy) run(t *task) {
	if !t.step(s.processor) {
		_ = s.submit(t, true)
	}
}
