package transport

import (
	"sync/atomic"

	"github.com/niolink/niolink-go/pkg/future"
)

// Distributor assigns channels to selectors.
//
// RegisterChannelAsync delivers exactly one of Completed or Failed to
// handler, possibly on another goroutine, and returns a future that
// resolves the same way. The handler returns before any readiness of ch
// is delivered.
type Distributor interface {
	RegisterChannelAsync(ch *Channel, interest Interest, conn *Connection,
		handler future.CompletionHandler[RegistrationResult]) *future.Future[RegistrationResult]
}

// RoundRobinDistributor spreads channels over selectors in turn.
type RoundRobinDistributor struct {
	selectors []*Selector
	next      atomic.Uint32
}

// NewRoundRobinDistributor creates a distributor over selectors.
func NewRoundRobinDistributor(selectors []*Selector) *RoundRobinDistributor {
	return &RoundRobinDistributor{selectors: selectors}
}

// RegisterChannelAsync registers ch with the next selector.
func (d *RoundRobinDistributor) RegisterChannelAsync(ch *Channel, interest Interest, conn *Connection,
	handler future.CompletionHandler[RegistrationResult]) *future.Future[RegistrationResult] {
	if len(d.selectors) == 0 {
		f := future.Failed[RegistrationResult](ErrTransportNotRunning)
		f.AddHandler(handler)
		return f
	}
	i := (d.next.Add(1) - 1) % uint32(len(d.selectors))
	return d.selectors[i].Register(ch, interest, conn, handler)
}
