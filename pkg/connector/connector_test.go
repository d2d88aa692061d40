package connector

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/niolink/niolink-go/pkg/future"
	"github.com/niolink/niolink-go/pkg/transport"
)

var loopbackUDP = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}

func TestDefaultConfigSnapshotsTransport(t *testing.T) {
	tr := transport.NewTransport(transport.TransportConfig{
		ReuseAddress:      true,
		ConnectionTimeout: 7 * time.Second,
	})
	cfg := DefaultConfig(tr)
	assert.True(t, cfg.ReuseAddress)
	assert.Equal(t, 7*time.Second, cfg.ConnectionTimeout)
	assert.NotNil(t, cfg.Logger)

	c := NewUDPConnector(tr, Config{})
	assert.Equal(t, 7*time.Second, c.Config().ConnectionTimeout, "zero timeout takes the transport default")
	assert.False(t, c.Config().ReuseAddress)
}

func TestConnectStoppedTransportFails(t *testing.T) {
	tr := transport.NewTransport(transport.TransportConfig{})

	var failed atomic.Int32
	f := NewUDPConnector(tr, DefaultConfig(tr)).Connect(loopbackUDP, nil,
		future.HandlerFuncs[*transport.Connection]{OnFailed: func(error) { failed.Add(1) }})

	_, err := f.GetTimeout(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrTransportNotRunning)

	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "register", ce.Op)
	assert.Equal(t, int32(1), failed.Load())
}

func TestTCPConnectRequiresRemote(t *testing.T) {
	tr := transport.NewTransport(transport.TransportConfig{})
	_, err := NewTCPConnector(tr, Config{}).Connect(nil, nil, nil).GetTimeout(time.Second)
	assert.ErrorIs(t, err, ErrNoRemoteAddress)
}

func TestUDPConnectDispatchesConnectedThroughGuard(t *testing.T) {
	d := &mockDistributor{}
	s := &mockStrategy{}
	tr := newMockTransport(t, d, s)

	d.On("RegisterChannelAsync", mock.Anything, transport.InterestNone, mock.Anything, mock.Anything).
		Run(completeRegistration).Return(nil)
	s.On("ExecuteEvent", mock.Anything, transport.EventConnected, mock.Anything).
		Run(reportOutcome(transport.Completed())).Return(nil)

	var handled *transport.Connection
	f := NewUDPConnector(tr, DefaultConfig(tr)).Connect(loopbackUDP, nil,
		future.HandlerFuncs[*transport.Connection]{OnCompleted: func(c *transport.Connection) { handled = c }})

	conn, err := f.GetTimeout(time.Second)
	require.NoError(t, err)
	defer conn.CloseQuietly()

	assert.Same(t, conn, handled)
	assert.Equal(t, transport.StateConnected, conn.State())
	assert.True(t, conn.ReadEnabled())
	assert.Equal(t, uint64(0), conn.BytesRead())
	assert.NotNil(t, conn.RemoteAddr(), "remote address makes the socket pseudo-connected")
	d.AssertExpectations(t)
	s.AssertExpectations(t)
}

func TestUDPConnectUnboundHasNoPeer(t *testing.T) {
	d := &mockDistributor{}
	s := &mockStrategy{}
	tr := newMockTransport(t, d, s)

	d.On("RegisterChannelAsync", mock.Anything, transport.InterestNone, mock.Anything, mock.Anything).
		Run(completeRegistration).Return(nil)
	s.On("ExecuteEvent", mock.Anything, transport.EventConnected, mock.Anything).
		Run(reportOutcome(transport.NotRun())).Return(nil)

	conn, err := NewUDPConnector(tr, DefaultConfig(tr)).ConnectUnbound().GetTimeout(time.Second)
	require.NoError(t, err)
	defer conn.CloseQuietly()

	assert.Nil(t, conn.RemoteAddr())
	assert.True(t, conn.ReadEnabled())
}

func TestRegistrationFailureClosesChannel(t *testing.T) {
	d := &mockDistributor{}
	tr := newMockTransport(t, d, &mockStrategy{})
	boom := errors.New("selector full")

	var registered *transport.Connection
	d.On("RegisterChannelAsync", mock.Anything, transport.InterestNone, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			registered = args.Get(2).(*transport.Connection)
			args.Get(3).(registrationHandler).Failed(boom)
		}).Return(nil)

	_, err := NewUDPConnector(tr, DefaultConfig(tr)).Connect(loopbackUDP, nil, nil).GetTimeout(time.Second)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, registered)
	assert.False(t, registered.IsOpen())
	assert.False(t, registered.Channel().IsOpen())
}

func TestStrategyFailureAborts(t *testing.T) {
	d := &mockDistributor{}
	s := &mockStrategy{}
	tr := newMockTransport(t, d, s)

	d.On("RegisterChannelAsync", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(completeRegistration).Return(nil)
	s.On("ExecuteEvent", mock.Anything, transport.EventConnected, mock.Anything).
		Return(transport.ErrTransportNotRunning)

	var registered *transport.Connection
	cfg := DefaultConfig(tr)
	cfg.PreConfigure = func(c *transport.Connection) error {
		registered = c
		return nil
	}

	_, err := NewUDPConnector(tr, cfg).Connect(loopbackUDP, nil, nil).GetTimeout(time.Second)
	assert.ErrorIs(t, err, transport.ErrTransportNotRunning)
	require.NotNil(t, registered)
	assert.False(t, registered.IsOpen())
}

func TestPipelineErrorClosesAndFails(t *testing.T) {
	d := &mockDistributor{}
	s := &mockStrategy{}
	tr := newMockTransport(t, d, s)

	d.On("RegisterChannelAsync", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(completeRegistration).Return(nil)
	s.On("ExecuteEvent", mock.Anything, transport.EventConnected, mock.Anything).
		Run(reportOutcome(transport.Failed(errors.New("filter failed")))).Return(nil)

	conn, err := NewUDPConnector(tr, DefaultConfig(tr)).Connect(loopbackUDP, nil, nil).GetTimeout(time.Second)
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, transport.ErrConnectionClosed)
	s.AssertCalled(t, "ExecuteEvent", mock.Anything, transport.EventClose, mock.Anything)
}

func TestPreConfigureFailureAborts(t *testing.T) {
	d := &mockDistributor{}
	tr := newMockTransport(t, d, &mockStrategy{})
	boom := errors.New("bad option")

	cfg := DefaultConfig(tr)
	cfg.PreConfigure = func(*transport.Connection) error { return boom }

	_, err := NewUDPConnector(tr, cfg).Connect(loopbackUDP, nil, nil).GetTimeout(time.Second)
	assert.ErrorIs(t, err, boom)
	d.AssertNotCalled(t, "RegisterChannelAsync", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelBeforeRegistrationCompletes(t *testing.T) {
	d := &mockDistributor{}
	s := &mockStrategy{}
	tr := newMockTransport(t, d, s)

	var (
		registered *transport.Connection
		handler    registrationHandler
	)
	d.On("RegisterChannelAsync", mock.Anything, transport.InterestNone, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			registered = args.Get(2).(*transport.Connection)
			handler = args.Get(3).(registrationHandler)
		}).Return(nil)

	var cancelled atomic.Int32
	f := NewUDPConnector(tr, DefaultConfig(tr)).Connect(loopbackUDP, nil,
		future.HandlerFuncs[*transport.Connection]{OnCancelled: func() { cancelled.Add(1) }})

	require.True(t, f.Cancel())
	require.NotNil(t, registered)
	assert.False(t, registered.IsOpen(), "cancel closes the channel")

	// Late registration completion must be harmless.
	assert.NotPanics(t, func() {
		handler.Completed(transport.RegistrationResult{Connection: registered})
		handler.Failed(errors.New("late"))
	})
	assert.Equal(t, future.StateCancelled, f.State())
	assert.Equal(t, int32(1), cancelled.Load())
	s.AssertNotCalled(t, "ExecuteEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelRacesCompletionExactlyOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := &mockDistributor{}
		s := &mockStrategy{}
		tr := newMockTransport(t, d, s)

		var handler registrationHandler
		var registered *transport.Connection
		d.On("RegisterChannelAsync", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				registered = args.Get(2).(*transport.Connection)
				handler = args.Get(3).(registrationHandler)
			}).Return(nil)
		s.On("ExecuteEvent", mock.Anything, mock.Anything, mock.Anything).
			Run(reportOutcome(transport.Completed())).Return(nil)

		var outcomes atomic.Int32
		f := NewUDPConnector(tr, DefaultConfig(tr)).Connect(loopbackUDP, nil,
			future.HandlerFuncs[*transport.Connection]{
				OnCompleted: func(*transport.Connection) { outcomes.Add(1) },
				OnFailed:    func(error) { outcomes.Add(1) },
				OnCancelled: func() { outcomes.Add(1) },
			})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.Cancel()
		}()
		go func() {
			defer wg.Done()
			handler.Completed(transport.RegistrationResult{Connection: registered})
		}()
		wg.Wait()

		require.True(t, f.IsDone())
		assert.Equal(t, int32(1), outcomes.Load(), "iteration %d", i)
		if f.State() == future.StateCancelled {
			assert.False(t, registered.IsOpen(), "iteration %d", i)
		}
		registered.CloseQuietly()
	}
}

func TestConnectSyncTimeout(t *testing.T) {
	d := &mockDistributor{}
	tr := newMockTransport(t, d, &mockStrategy{})

	var registered *transport.Connection
	d.On("RegisterChannelAsync", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { registered = args.Get(2).(*transport.Connection) }).
		Return(nil)

	cfg := DefaultConfig(tr)
	cfg.ConnectionTimeout = 50 * time.Millisecond

	start := time.Now()
	conn, err := NewUDPConnector(tr, cfg).ConnectSync(context.Background(), loopbackUDP, nil, nil)
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, ErrConnectTimeout)
	assert.GreaterOrEqual(t, int64(time.Since(start)), int64(50*time.Millisecond))
	require.NotNil(t, registered)
	assert.False(t, registered.IsOpen(), "timeout closes the channel")
}

func TestConnectSyncParentDeadlineIsTimeout(t *testing.T) {
	d := &mockDistributor{}
	tr := newMockTransport(t, d, &mockStrategy{})
	d.On("RegisterChannelAsync", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := NewUDPConnector(tr, DefaultConfig(tr)).ConnectSync(ctx, loopbackUDP, nil, nil)
	assert.ErrorIs(t, err, ErrConnectTimeout)
}

func TestGiveUpReportsLateOutcome(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	boom := errors.New("no route")

	failed := future.Failed[*transport.Connection](boom)
	_, err := giveUp(expired, failed, loopbackUDP)
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, boom)

	cancelled := future.New[*transport.Connection]()
	cancelled.Cancel()
	_, err = giveUp(expired, cancelled, loopbackUDP)
	assert.ErrorIs(t, err, ErrConnectCancelled)

	conn := &transport.Connection{}
	conn2, err := giveUp(expired, future.Ready(conn), loopbackUDP)
	require.NoError(t, err)
	assert.Same(t, conn, conn2)

	_, err = giveUp(expired, future.New[*transport.Connection](), loopbackUDP)
	assert.ErrorIs(t, err, ErrConnectTimeout)
}

func TestConnectSyncInterrupted(t *testing.T) {
	d := &mockDistributor{}
	tr := newMockTransport(t, d, &mockStrategy{})
	d.On("RegisterChannelAsync", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := NewUDPConnector(tr, DefaultConfig(tr)).ConnectSync(ctx, loopbackUDP, nil, nil)
	assert.ErrorIs(t, err, ErrConnectInterrupted)
}

func TestConnectSyncWrapsFailure(t *testing.T) {
	d := &mockDistributor{}
	tr := newMockTransport(t, d, &mockStrategy{})
	boom := errors.New("no route")
	d.On("RegisterChannelAsync", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { args.Get(3).(registrationHandler).Failed(boom) }).
		Return(nil)

	_, err := NewUDPConnector(tr, DefaultConfig(tr)).ConnectSync(context.Background(), loopbackUDP, nil, nil)
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "udp", ce.Network)
}

func TestConnectSyncSuccess(t *testing.T) {
	d := &mockDistributor{}
	s := &mockStrategy{}
	tr := newMockTransport(t, d, s)
	d.On("RegisterChannelAsync", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(completeRegistration).Return(nil)
	s.On("ExecuteEvent", mock.Anything, mock.Anything, mock.Anything).
		Run(reportOutcome(transport.CompletedLeaveOpen())).Return(nil)

	conn, err := NewUDPConnector(tr, DefaultConfig(tr)).ConnectSync(context.Background(), loopbackUDP, nil, nil)
	require.NoError(t, err)
	defer conn.CloseQuietly()
	assert.True(t, conn.ReadEnabled())
}

func TestConnectErrorMessage(t *testing.T) {
	err := &ConnectError{Op: "dial", Network: "tcp", Addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 80}, Err: errors.New("refused")}
	assert.Equal(t, "dial tcp 127.0.0.1:80: refused", err.Error())
	assert.Equal(t, "bind udp: refused", (&ConnectError{Op: "bind", Network: "udp", Err: errors.New("refused")}).Error())
}
