package future

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Future errors.
var (
	ErrCancelled = errors.New("future cancelled")
	ErrTimeout   = errors.New("future wait timed out")
)

// State is the resolution state of a Future.
type State uint32

const (
	// StatePending indicates the Future has not been resolved yet.
	StatePending State = iota

	// StateResult indicates the Future holds a value.
	StateResult

	// StateFailure indicates the Future holds an error.
	StateFailure

	// StateCancelled indicates the Future was cancelled.
	StateCancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateResult:
		return "RESULT"
	case StateFailure:
		return "FAILURE"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Future is a cancellable, awaitable single-assignment result.
// The zero value is not usable; create Futures with New.
type Future[T any] struct {
	state atomic.Uint32
	done  chan struct{}

	mu       sync.Mutex
	value    T
	err      error
	handlers []CompletionHandler[T]
	onCancel []func()
}

// New creates a pending Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Ready creates a Future already resolved with value.
func Ready[T any](value T) *Future[T] {
	f := New[T]()
	f.Result(value)
	return f
}

// Failed creates a Future already resolved with err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.Failure(err)
	return f
}

// Result resolves the Future with value.
// Returns false if the Future was already resolved.
func (f *Future[T]) Result(value T) bool {
	return f.resolve(StateResult, value, nil)
}

// Failure resolves the Future with err.
// Returns false if the Future was already resolved.
func (f *Future[T]) Failure(err error) bool {
	var zero T
	if err == nil {
		err = errors.New("future failed with nil error")
	}
	return f.resolve(StateFailure, zero, err)
}

// Cancel cancels the Future. Cancel hooks run before completion handlers.
// Returns false if the Future was already resolved.
func (f *Future[T]) Cancel() bool {
	var zero T
	return f.resolve(StateCancelled, zero, ErrCancelled)
}

func (f *Future[T]) resolve(state State, value T, err error) bool {
	f.mu.Lock()
	if State(f.state.Load()) != StatePending {
		f.mu.Unlock()
		return false
	}
	f.value = value
	f.err = err
	f.state.Store(uint32(state))
	handlers := f.handlers
	hooks := f.onCancel
	f.handlers = nil
	f.onCancel = nil
	close(f.done)
	f.mu.Unlock()

	if state == StateCancelled {
		for _, hook := range hooks {
			hook()
		}
	}
	for _, h := range handlers {
		notify(h, state, value, err)
	}
	return true
}

func notify[T any](h CompletionHandler[T], state State, value T, err error) {
	switch state {
	case StateResult:
		h.Completed(value)
	case StateFailure:
		h.Failed(err)
	case StateCancelled:
		h.Cancelled()
	}
}

// AddHandler registers h to be notified once the Future resolves.
// If the Future is already resolved, h is notified immediately on the
// calling goroutine.
func (f *Future[T]) AddHandler(h CompletionHandler[T]) {
	if h == nil {
		return
	}
	f.mu.Lock()
	state := State(f.state.Load())
	if state == StatePending {
		f.handlers = append(f.handlers, h)
		f.mu.Unlock()
		return
	}
	value, err := f.value, f.err
	f.mu.Unlock()
	notify(h, state, value, err)
}

// OnCancel registers fn to run if the Future is cancelled.
// If the Future is already cancelled, fn runs immediately. If it was
// resolved any other way, fn is dropped.
func (f *Future[T]) OnCancel(fn func()) {
	f.mu.Lock()
	state := State(f.state.Load())
	if state == StatePending {
		f.onCancel = append(f.onCancel, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	if state == StateCancelled {
		fn()
	}
}

// State returns the current resolution state.
func (f *Future[T]) State() State {
	return State(f.state.Load())
}

// IsDone reports whether the Future has been resolved in any way.
func (f *Future[T]) IsDone() bool {
	return f.State() != StatePending
}

// Done returns a channel that is closed when the Future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get waits for the Future to resolve or ctx to end.
// A cancelled Future returns ErrCancelled; an expired ctx returns ctx.Err().
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.outcome()
	default:
	}

	select {
	case <-f.done:
		return f.outcome()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GetTimeout waits up to timeout for the Future to resolve.
// Returns ErrTimeout if it does not.
func (f *Future[T]) GetTimeout(timeout time.Duration) (T, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.outcome()
	case <-timer.C:
		var zero T
		return zero, ErrTimeout
	}
}

func (f *Future[T]) outcome() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// Completed resolves the Future with value. Part of CompletionHandler.
func (f *Future[T]) Completed(value T) { f.Result(value) }

// Failed resolves the Future with err. Part of CompletionHandler.
func (f *Future[T]) Failed(err error) { f.Failure(err) }

// Cancelled cancels the Future. Part of CompletionHandler.
func (f *Future[T]) Cancelled() { f.Cancel() }

// Compile-time interface satisfaction check.
var _ CompletionHandler[int] = (*Future[int])(nil)
