package connector

import (
	"log/slog"
	"net"

	"github.com/niolink/niolink-go/pkg/future"
	"github.com/niolink/niolink-go/pkg/transport"
)

// TCPConnector opens stream connections.
type TCPConnector struct {
	transport    *transport.Transport
	config       Config
	reuseDefault bool
	logger       *slog.Logger
}

// NewTCPConnector creates a connector on t with an immutable copy of config.
func NewTCPConnector(t *transport.Transport, config Config) *TCPConnector {
	config = config.withDefaults(t)
	return &TCPConnector{
		transport:    t,
		config:       config,
		reuseDefault: t.IsReuseAddress(),
		logger:       config.Logger,
	}
}

// Config returns the connector's configuration.
func (c *TCPConnector) Config() Config { return c.config }

// Connect starts connecting to remote, optionally bound to local. The
// returned future resolves once the connect event was processed, and
// handler, if not nil, is notified the same way. Cancelling the future
// closes the connection.
func (c *TCPConnector) Connect(remote, local net.Addr, handler future.CompletionHandler[*transport.Connection]) *future.Future[*transport.Connection] {
	a := newAttempt("tcp", remote, handler)
	c.connect(a, remote, local)
	return a.result
}

// ConnectAsync is Connect for callers that only need handler.
func (c *TCPConnector) ConnectAsync(remote, local net.Addr, handler future.CompletionHandler[*transport.Connection]) {
	c.Connect(remote, local, handler)
}

func (c *TCPConnector) connect(a *attempt, remote, local net.Addr) {
	if remote == nil {
		a.fail("dial", nil, ErrNoRemoteAddress)
		return
	}
	t := c.transport

	ch, err := transport.OpenChannel("tcp", transport.FamilyOf(remote, local))
	if err != nil {
		a.fail("dial", remote, err)
		return
	}
	conn := t.NewConnection(ch)
	a.bind(conn)

	if err := t.Configurator().PreConfigure(t, ch); err != nil {
		a.fail("configure", remote, err)
		return
	}
	if c.config.ReuseAddress != c.reuseDefault {
		if err := ch.SetReuseAddress(c.config.ReuseAddress); err != nil {
			a.fail("configure", remote, err)
			return
		}
	}
	if local != nil {
		if err := ch.Bind(local); err != nil {
			a.fail("bind", local, err)
			return
		}
	}
	if c.config.PreConfigure != nil {
		if err := c.config.PreConfigure(conn); err != nil {
			a.fail("configure", remote, err)
			return
		}
	}

	conn.MarkConnecting()
	immediate, err := ch.Connect(remote)
	if err != nil {
		a.fail("dial", remote, err)
		return
	}

	conn.SetConnectResultHandler(&tcpConnectResult{connector: c, attempt: a})

	distributor := t.Distributor()
	if distributor == nil {
		a.fail("register", remote, transport.ErrTransportNotRunning)
		return
	}

	if immediate {
		distributor.RegisterChannelAsync(ch, transport.InterestNone, conn,
			future.HandlerFuncs[transport.RegistrationResult]{
				OnCompleted: func(res transport.RegistrationResult) {
					t.RegistrationCompleted(res)
					res.Connection.OnConnect()
				},
				OnFailed: conn.CheckAndReportConnectFailure,
			})
		return
	}

	// Completion is detected later by the selector through OnConnectReady.
	distributor.RegisterChannelAsync(ch, transport.InterestConnect, conn,
		future.HandlerFuncs[transport.RegistrationResult]{
			OnCompleted: t.RegistrationCompleted,
			OnFailed:    conn.CheckAndReportConnectFailure,
		})
}

// tcpConnectResult is installed on the connection before registration.
type tcpConnectResult struct {
	connector *TCPConnector
	attempt   *attempt
}

func (r *tcpConnectResult) Connected() error {
	return r.connector.onConnected(r.attempt)
}

func (r *tcpConnectResult) Failed(err error) {
	r.attempt.fail("dial", r.attempt.remote, err)
}

func (c *TCPConnector) onConnected(a *attempt) error {
	t := c.transport
	conn := a.conn
	ch := conn.Channel()

	if !ch.IsConnected() {
		done, err := ch.FinishConnect()
		if err != nil {
			return err
		}
		if !done {
			return ErrHandshakeIncomplete
		}
	}

	conn.ResetProperties()
	if err := conn.DeregisterInterest(transport.InterestConnect); err != nil {
		return err
	}
	if err := t.Configurator().PostConfigure(t, ch); err != nil {
		return err
	}

	if conn.IsReadyForDispatch() {
		c.logger.Debug("connected", "conn_id", conn.ID(), "remote", conn.RemoteAddr())
		conn.SetAttribute(resultAttribute, a.result)
		return t.ExecuteEvent(conn, transport.EventConnect, NewEnableReadGuard(a.result, c.logger))
	}
	return nil
}
