package connector

import (
	"log/slog"

	"github.com/niolink/niolink-go/pkg/future"
	"github.com/niolink/niolink-go/pkg/transport"
)

// resultAttribute is the connection attribute holding the connect
// result while the connect event is dispatched.
const resultAttribute = "connector.result"

// PendingResult returns the connect result of a connection whose connect
// event is being processed. A processor that stops the event with
// transport.ConnectTerminate uses it to complete the connect later.
func PendingResult(conn *transport.Connection) (*future.Future[*transport.Connection], bool) {
	v, ok := conn.Attribute(resultAttribute)
	if !ok {
		return nil, false
	}
	f, ok := v.(*future.Future[*transport.Connection])
	return f, ok
}

// EnableReadGuard decides, from the outcome of the connect event, whether
// the connect result is delivered and inbound reads may start.
type EnableReadGuard struct {
	result *future.Future[*transport.Connection]
	logger *slog.Logger
}

// NewEnableReadGuard creates a guard completing result. A nil result is
// allowed; the guard then only manages read interest.
func NewEnableReadGuard(result *future.Future[*transport.Connection], logger *slog.Logger) *EnableReadGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnableReadGuard{result: result, logger: logger}
}

// OnResult applies the outcome of the connect dispatch.
func (g *EnableReadGuard) OnResult(ctx *transport.Context, res transport.ProcessorResult) {
	conn := ctx.Conn
	switch res.Outcome {
	case transport.OutcomeCompleted, transport.OutcomeCompletedLeaveOpen, transport.OutcomeNotRun:
		if g.result != nil {
			g.result.Result(conn)
		}
		g.enableRead(conn)
	case transport.OutcomeTerminate:
		if res.Reason == transport.ConnectTerminate {
			g.enableRead(conn)
		}
	case transport.OutcomeReregister, transport.OutcomeRerun:
		// Strategies run the event again before reporting these.
	case transport.OutcomeError:
		g.logger.Debug("connect event failed", "conn_id", conn.ID(), "err", res.Err)
		conn.CloseQuietly()
	}
}

func (g *EnableReadGuard) enableRead(conn *transport.Connection) {
	if err := conn.EnableReadInterest(); err != nil {
		g.logger.Debug("enable read failed", "conn_id", conn.ID(), "err", err)
	}
}

// Compile-time interface satisfaction check.
var _ transport.LifecycleListener = (*EnableReadGuard)(nil)
