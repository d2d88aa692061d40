// Package transport provides the reactor that drives non-blocking sockets.
//
// The transport layer handles:
//   - Raw non-blocking channels (TCP and UDP sockets)
//   - Readiness polling with one epoll selector per dispatcher goroutine
//   - Asynchronous channel registration through a Distributor
//   - Event dispatch through a Processor under a Strategy
//   - Connection state and interest-set management
//
// # Dispatch Stack
//
//	┌────────────────────────────────┐
//	│   Processor / FilterChain      │
//	├────────────────────────────────┤
//	│   Strategy (same-thread/pool)  │
//	├────────────────────────────────┤
//	│   Connection (state, interest) │
//	├────────────────────────────────┤
//	│   Selector (epoll, eventfd)    │
//	├────────────────────────────────┤
//	│   Channel (raw fd)             │
//	└────────────────────────────────┘
//
// # Connection States
//
//	INITIAL ──► CONNECTING ──► CONNECTED
//	   │            │              │
//	   └────────────┴──────────────┴──► CLOSED
//
// CONNECTING to CONNECTED happens at most once, through
// Connection.IsReadyForDispatch. A closed connection is never reused.
//
// # Interest Sets
//
// A connection's interest set is a bitmask mutated only by
// compare-and-swap. The selector re-reads the latest value under the
// channel lock before applying it to epoll, so concurrent register and
// deregister calls cannot leave the kernel mask stale.
//
// Read interest is enabled at most once per connection, by
// Connection.EnableReadInterest.
package transport
