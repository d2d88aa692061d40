package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/niolink/niolink-go/pkg/future"
	"github.com/niolink/niolink-go/pkg/transport"
)

type registrationHandler = future.CompletionHandler[transport.RegistrationResult]

// mockDistributor records registrations. Tests decide through Run
// whether and how the handler is notified.
type mockDistributor struct{ mock.Mock }

func (d *mockDistributor) RegisterChannelAsync(ch *transport.Channel, interest transport.Interest,
	conn *transport.Connection, handler registrationHandler) *future.Future[transport.RegistrationResult] {
	ret := d.Called(ch, interest, conn, handler)
	if ret.Get(0) == nil {
		return future.New[transport.RegistrationResult]()
	}
	return ret.Get(0).(*future.Future[transport.RegistrationResult])
}

// mockStrategy records dispatches.
type mockStrategy struct{ mock.Mock }

func (s *mockStrategy) ExecuteEvent(conn *transport.Connection, event transport.IOEvent, listener transport.LifecycleListener) error {
	return s.Called(conn, event, listener).Error(0)
}

// completeRegistration notifies the handler as a selector would.
func completeRegistration(args mock.Arguments) {
	conn := args.Get(2).(*transport.Connection)
	handler := args.Get(3).(registrationHandler)
	handler.Completed(transport.RegistrationResult{Connection: conn})
}

// reportOutcome returns a Run func answering a dispatch with res.
func reportOutcome(res transport.ProcessorResult) func(mock.Arguments) {
	return func(args mock.Arguments) {
		conn := args.Get(0).(*transport.Connection)
		event := args.Get(1).(transport.IOEvent)
		listener := args.Get(2).(transport.LifecycleListener)
		listener.OnResult(&transport.Context{Conn: conn, Event: event}, res)
	}
}

// newMockTransport starts a transport over d and s. Closing a
// registered connection dispatches EventClose, which s accepts silently.
func newMockTransport(t *testing.T, d *mockDistributor, s *mockStrategy) *transport.Transport {
	t.Helper()
	s.On("ExecuteEvent", mock.Anything, transport.EventClose, mock.Anything).Return(nil).Maybe()
	tr := transport.NewTransport(transport.TransportConfig{
		CustomDistributor: d,
		CustomStrategy:    s,
	})
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { _ = tr.Stop() })
	return tr
}

// Compile-time interface satisfaction checks.
var (
	_ transport.Distributor = (*mockDistributor)(nil)
	_ transport.Strategy    = (*mockStrategy)(nil)
)
