package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	ErrTransportNotRunning = errors.New("transport not running")
	ErrTransportRunning    = errors.New("transport already running")
	ErrConnectionClosed    = errors.New("connection closed")
	ErrAlreadyRegistered   = errors.New("channel already registered")
	ErrWouldBlock          = errors.New("operation would block")
	ErrSelectorClosed      = errors.New("selector closed")
	ErrUnsupportedNetwork  = errors.New("unsupported network")
	ErrUnsupportedAddress  = errors.New("unsupported address")
	ErrUnsupportedPlatform = errors.New("selector not supported on this platform")
	ErrTooManyReruns       = errors.New("processor asked to rerun too often")
)

// PanicError reports a processor that panicked during dispatch.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("processor panic: %v", e.Value)
}
