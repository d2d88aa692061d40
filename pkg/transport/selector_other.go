//go:build !linux

package transport

import (
	"context"

	"github.com/niolink/niolink-go/pkg/future"
)

// Selector is unavailable outside Linux. A Transport can still run with
// a custom Distributor.
type Selector struct {
	index int
}

// NewSelector always fails with ErrUnsupportedPlatform.
func NewSelector(index int, t *Transport) (*Selector, error) {
	return nil, ErrUnsupportedPlatform
}

// Index returns the selector's position in the transport.
func (s *Selector) Index() int { return s.index }

// Register always fails.
func (s *Selector) Register(ch *Channel, interest Interest, conn *Connection,
	handler future.CompletionHandler[RegistrationResult]) *future.Future[RegistrationResult] {
	f := future.Failed[RegistrationResult](ErrUnsupportedPlatform)
	f.AddHandler(handler)
	return f
}

// Len returns zero.
func (s *Selector) Len() int { return 0 }

// Run returns ErrUnsupportedPlatform.
func (s *Selector) Run(ctx context.Context) error { return ErrUnsupportedPlatform }

func (s *Selector) modify(fd int, interest Interest) error { return ErrUnsupportedPlatform }

func (s *Selector) remove(fd int, key *SelectionKey) {}
