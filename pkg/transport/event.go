package transport

// IOEvent identifies the kind of event dispatched through the processor.
type IOEvent int

const (
	// EventConnect is dispatched once a stream connection finished its handshake.
	EventConnect IOEvent = iota

	// EventConnected is synthesized for datagram connections once registered.
	EventConnected

	// EventRead is dispatched when the channel has inbound data.
	EventRead

	// EventWrite is dispatched when the channel can accept outbound data.
	EventWrite

	// EventClose is dispatched after the connection was closed.
	EventClose
)

// String returns the event name.
func (e IOEvent) String() string {
	switch e {
	case EventConnect:
		return "CONNECT"
	case EventConnected:
		return "CONNECTED"
	case EventRead:
		return "READ"
	case EventWrite:
		return "WRITE"
	case EventClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the result a processor reports for one dispatch.
type Outcome int

const (
	// OutcomeCompleted means processing finished.
	OutcomeCompleted Outcome = iota

	// OutcomeCompletedLeaveOpen means processing finished and the
	// connection should be kept open without further action.
	OutcomeCompletedLeaveOpen

	// OutcomeReregister means processing is suspended until the
	// connection is registered for the event again.
	OutcomeReregister

	// OutcomeRerun means the event must be processed again.
	OutcomeRerun

	// OutcomeError means processing failed.
	OutcomeError

	// OutcomeTerminate means processing was stopped deliberately.
	// The reason travels in ProcessorResult.Reason.
	OutcomeTerminate

	// OutcomeNotRun means nothing was interested in the event.
	OutcomeNotRun
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "COMPLETED"
	case OutcomeCompletedLeaveOpen:
		return "COMPLETED_LEAVE_OPEN"
	case OutcomeReregister:
		return "REREGISTER"
	case OutcomeRerun:
		return "RERUN"
	case OutcomeError:
		return "ERROR"
	case OutcomeTerminate:
		return "TERMINATE"
	case OutcomeNotRun:
		return "NOT_RUN"
	default:
		return "UNKNOWN"
	}
}

// TerminateReason is an identity marker carried by OutcomeTerminate.
// Reasons compare by pointer, never by name.
type TerminateReason struct {
	name string
}

// NewTerminateReason creates a distinct termination marker.
func NewTerminateReason(name string) *TerminateReason {
	return &TerminateReason{name: name}
}

// String returns the marker name.
func (r *TerminateReason) String() string {
	return r.name
}

// ConnectTerminate is the reason a processor reports when it stops the
// connect event on purpose but still wants the connection to read.
var ConnectTerminate = NewTerminateReason("connect")

// ProcessorResult is what a processor reports for one dispatch.
type ProcessorResult struct {
	Outcome Outcome

	// Reason is set for OutcomeTerminate.
	Reason any

	// Err is set for OutcomeError.
	Err error
}

// Completed returns an OutcomeCompleted result.
func Completed() ProcessorResult { return ProcessorResult{Outcome: OutcomeCompleted} }

// CompletedLeaveOpen returns an OutcomeCompletedLeaveOpen result.
func CompletedLeaveOpen() ProcessorResult {
	return ProcessorResult{Outcome: OutcomeCompletedLeaveOpen}
}

// Terminated returns an OutcomeTerminate result carrying reason.
func Terminated(reason any) ProcessorResult {
	return ProcessorResult{Outcome: OutcomeTerminate, Reason: reason}
}

// Failed returns an OutcomeError result carrying err.
func Failed(err error) ProcessorResult {
	return ProcessorResult{Outcome: OutcomeError, Err: err}
}

// NotRun returns an OutcomeNotRun result.
func NotRun() ProcessorResult { return ProcessorResult{Outcome: OutcomeNotRun} }

// ReasonString renders a termination reason for logs.
func ReasonString(reason any) string {
	switch r := reason.(type) {
	case nil:
		return ""
	case *TerminateReason:
		return r.String()
	case string:
		return r
	case error:
		return r.Error()
	case interface{ String() string }:
		return r.String()
	default:
		return "unknown"
	}
}

// Context is the per-dispatch state handed to a processor.
type Context struct {
	Conn  *Connection
	Event IOEvent
}
