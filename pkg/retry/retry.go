package retry

import (
	"context"
	"errors"
	"fmt"
)

// ErrPermanent marks an error that must not be retried. Wrap it with
// Permanent.
var ErrPermanent = errors.New("permanent failure")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() []error {
	return []error{e.err, ErrPermanent}
}

// Permanent wraps err so Do returns it without another attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// AttemptFunc performs one attempt.
type AttemptFunc[T any] func(ctx context.Context) (T, error)

// Do calls fn up to attempts times, waiting on b between failures.
// attempts <= 0 means retry until ctx ends. The backoff is reset after a
// success. The last error is returned, wrapped with the attempt count.
func Do[T any](ctx context.Context, b *Backoff, attempts int, fn AttemptFunc[T]) (T, error) {
	var zero T
	if b == nil {
		b = NewBackoff()
	}

	for n := 1; ; n++ {
		v, err := fn(ctx)
		if err == nil {
			b.Reset()
			return v, nil
		}
		if errors.Is(err, ErrPermanent) {
			return zero, err
		}
		if attempts > 0 && n >= attempts {
			return zero, fmt.Errorf("gave up after %d attempts: %w", n, err)
		}

		if werr := b.Wait(ctx); werr != nil {
			return zero, fmt.Errorf("%w (last error: %w)", werr, err)
		}
	}
}
