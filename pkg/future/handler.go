package future

// CompletionHandler receives the outcome of an asynchronous operation.
// Exactly one method is called, exactly once.
type CompletionHandler[T any] interface {
	// Completed is called with the result on success.
	Completed(result T)

	// Failed is called with the cause on failure.
	Failed(err error)

	// Cancelled is called when the operation was cancelled.
	Cancelled()
}

// HandlerFuncs adapts plain functions to CompletionHandler.
// Nil fields are ignored.
type HandlerFuncs[T any] struct {
	OnCompleted func(result T)
	OnFailed    func(err error)
	OnCancelled func()
}

// Completed calls OnCompleted.
func (h HandlerFuncs[T]) Completed(result T) {
	if h.OnCompleted != nil {
		h.OnCompleted(result)
	}
}

// Failed calls OnFailed.
func (h HandlerFuncs[T]) Failed(err error) {
	if h.OnFailed != nil {
		h.OnFailed(err)
	}
}

// Cancelled calls OnCancelled.
func (h HandlerFuncs[T]) Cancelled() {
	if h.OnCancelled != nil {
		h.OnCancelled()
	}
}

// Compile-time interface satisfaction check.
var _ CompletionHandler[int] = HandlerFuncs[int]{}
