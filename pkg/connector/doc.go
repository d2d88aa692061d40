// Package connector opens outbound TCP and UDP connections on a
// transport.Transport.
//
// Both connectors run socket setup on the calling goroutine up to the
// distributor hand-off, then finish on a selector goroutine. The result
// is delivered through a future.Future that resolves exactly once, and
// optionally through a completion handler attached to it.
//
// Inbound reads are enabled only after the connect event went through
// the transport's processor, under EnableReadGuard:
//
//	outcome                          completes  enables read
//	COMPLETED / LEAVE_OPEN / NOT_RUN     yes         yes
//	TERMINATE (ConnectTerminate)         no          yes
//	TERMINATE (other reason)             no          no
//	REREGISTER / RERUN                   no          no
//	ERROR                                no          no (closes)
package connector
