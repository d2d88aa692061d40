package connector

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/niolink/niolink-go/pkg/future"
	"github.com/niolink/niolink-go/pkg/transport"
)

// UDPConnector opens datagram connections. There is no handshake; the
// connector synthesizes a CONNECTED event once the channel is registered.
type UDPConnector struct {
	transport *transport.Transport
	config    Config
	logger    *slog.Logger
}

// NewUDPConnector creates a connector on t with an immutable copy of config.
func NewUDPConnector(t *transport.Transport, config Config) *UDPConnector {
	config = config.withDefaults(t)
	return &UDPConnector{transport: t, config: config, logger: config.Logger}
}

// Config returns the connector's configuration.
func (c *UDPConnector) Config() Config { return c.config }

// Connect opens a datagram connection. With a remote address the socket
// is associated with that peer; without one it receives from anyone.
func (c *UDPConnector) Connect(remote, local net.Addr, handler future.CompletionHandler[*transport.Connection]) *future.Future[*transport.Connection] {
	a := newAttempt("udp", remote, handler)
	c.connect(a, remote, local)
	return a.result
}

// ConnectUnbound opens a receive-from-any connection on an ephemeral port.
func (c *UDPConnector) ConnectUnbound() *future.Future[*transport.Connection] {
	return c.Connect(nil, nil, nil)
}

// ConnectSync connects and waits up to the configured timeout. It blocks
// the calling goroutine only. On timeout or when ctx ends the attempt is
// cancelled, which closes the channel. A ctx deadline counts as a
// timeout; only cancellation of ctx is an interrupt.
func (c *UDPConnector) ConnectSync(ctx context.Context, remote, local net.Addr, handler future.CompletionHandler[*transport.Connection]) (*transport.Connection, error) {
	f := c.Connect(remote, local, handler)

	waitCtx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	conn, err := f.Get(waitCtx)
	if err == nil {
		return conn, nil
	}
	return giveUp(ctx, f, remote)
}

// giveUp cancels f after an unsuccessful wait. If f resolved first, its
// own outcome is reported.
func giveUp(ctx context.Context, f *future.Future[*transport.Connection], remote net.Addr) (*transport.Connection, error) {
	if f.Cancel() {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ErrConnectInterrupted
		}
		return nil, ErrConnectTimeout
	}

	conn, err := f.Get(context.Background())
	switch {
	case err == nil:
		return conn, nil
	case errors.Is(err, future.ErrCancelled):
		return nil, ErrConnectCancelled
	}
	return nil, wrapErr("dial", "udp", remote, err)
}

func (c *UDPConnector) connect(a *attempt, remote, local net.Addr) {
	t := c.transport

	ch, err := transport.OpenChannel("udp", transport.FamilyOf(remote, local))
	if err != nil {
		a.fail("dial", remote, err)
		return
	}
	conn := t.NewConnection(ch)
	a.bind(conn)

	if err := ch.SetReuseAddress(c.config.ReuseAddress); err != nil {
		a.fail("configure", remote, err)
		return
	}
	if local != nil {
		if err := ch.Bind(local); err != nil {
			a.fail("bind", local, err)
			return
		}
	}

	conn.MarkConnecting()
	if remote != nil {
		if _, err := ch.Connect(remote); err != nil {
			a.fail("dial", remote, err)
			return
		}
	}
	if c.config.PreConfigure != nil {
		if err := c.config.PreConfigure(conn); err != nil {
			a.fail("configure", remote, err)
			return
		}
	}

	distributor := t.Distributor()
	if distributor == nil {
		a.fail("register", remote, transport.ErrTransportNotRunning)
		return
	}

	conn.SetConnectResultHandler(&udpConnectResult{connector: c, attempt: a})
	distributor.RegisterChannelAsync(ch, transport.InterestNone, conn,
		future.HandlerFuncs[transport.RegistrationResult]{
			OnCompleted: func(res transport.RegistrationResult) {
				t.RegistrationCompleted(res)
				res.Connection.OnConnect()
			},
			OnFailed: conn.CheckAndReportConnectFailure,
		})
}

type udpConnectResult struct {
	connector *UDPConnector
	attempt   *attempt
}

func (r *udpConnectResult) Connected() error {
	return r.connector.onConnected(r.attempt)
}

func (r *udpConnectResult) Failed(err error) {
	r.attempt.fail("register", r.attempt.remote, err)
}

func (c *UDPConnector) onConnected(a *attempt) error {
	conn := a.conn
	conn.ResetProperties()
	if !conn.IsReadyForDispatch() {
		return nil
	}
	conn.SetAttribute(resultAttribute, a.result)
	return c.transport.ExecuteEvent(conn, transport.EventConnected, NewEnableReadGuard(a.result, c.logger))
}
