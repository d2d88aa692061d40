package connector

import (
	"net"
	"sync/atomic"

	"github.com/niolink/niolink-go/pkg/future"
	"github.com/niolink/niolink-go/pkg/transport"
)

// attempt ties one connect attempt to its result.
//
// The result resolves exactly once: with the connection when the guard
// lets it through, with the abort cause on failure, or with
// ErrConnectionClosed if the connection closes first. Cancelling the
// result closes the connection.
type attempt struct {
	network string
	remote  net.Addr
	result  *future.Future[*transport.Connection]
	conn    *transport.Connection
	cause   atomic.Pointer[error]
}

func newAttempt(network string, remote net.Addr, handler future.CompletionHandler[*transport.Connection]) *attempt {
	a := &attempt{
		network: network,
		remote:  remote,
		result:  future.New[*transport.Connection](),
	}
	a.result.AddHandler(handler)
	return a
}

// bind attaches the connection created for this attempt.
func (a *attempt) bind(conn *transport.Connection) {
	a.conn = conn
	a.result.OnCancel(conn.CloseQuietly)
	conn.AddCloseListener(func(*transport.Connection) {
		if p := a.cause.Load(); p != nil {
			a.result.Failure(*p)
			return
		}
		a.result.Failure(wrapErr("dial", a.network, a.remote, transport.ErrConnectionClosed))
	})
}

// fail closes the connection, if any, and resolves the result with err.
func (a *attempt) fail(op string, addr net.Addr, err error) {
	err = wrapErr(op, a.network, addr, err)
	a.cause.CompareAndSwap(nil, &err)
	if a.conn != nil {
		a.conn.CloseQuietly()
	}
	a.result.Failure(err)
}
