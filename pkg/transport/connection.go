package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/niolink/niolink-go/pkg/log"
)

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState int32

const (
	// StateInitial indicates a freshly opened channel.
	StateInitial ConnectionState = iota

	// StateConnecting indicates a connect attempt is in progress.
	StateConnecting

	// StateConnected indicates the connect event was dispatched.
	StateConnected

	// StateClosed indicates the channel was released.
	StateClosed
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectResultHandler receives the result of a connect attempt.
// At most one of its methods is called, at most once.
type ConnectResultHandler interface {
	// Connected is called when the handshake finished. A returned error
	// is passed to Failed.
	Connected() error

	// Failed is called when the connect attempt failed.
	Failed(err error)
}

type connectHandlerBox struct {
	h ConnectResultHandler
}

// Connection owns one Channel and tracks its state and interest set.
type Connection struct {
	id        uuid.UUID
	channel   *Channel
	transport *Transport

	state       atomic.Int32
	interest    atomic.Uint32
	readEnabled atomic.Bool
	key         atomic.Pointer[SelectionKey]
	handler     atomic.Pointer[connectHandlerBox]

	readBusy  atomic.Bool
	readAgain atomic.Bool
	bytesRead atomic.Uint64

	mu             sync.Mutex
	attributes     map[string]any
	closeListeners []func(*Connection)
}

func newConnection(t *Transport, ch *Channel) *Connection {
	return &Connection{
		id:        uuid.New(),
		channel:   ch,
		transport: t,
	}
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() uuid.UUID { return c.id }

// Channel returns the owned channel.
func (c *Connection) Channel() *Channel { return c.channel }

// Transport returns the transport the connection belongs to.
func (c *Connection) Transport() *Transport { return c.transport }

// Network returns the channel's network.
func (c *Connection) Network() string { return c.channel.Network() }

// State returns the current state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsOpen reports whether the connection has not been closed.
func (c *Connection) IsOpen() bool {
	return c.State() != StateClosed
}

// Interest returns the current interest set.
func (c *Connection) Interest() Interest {
	return Interest(c.interest.Load())
}

// ReadEnabled reports whether EnableReadInterest has taken effect.
func (c *Connection) ReadEnabled() bool {
	return c.readEnabled.Load()
}

// LocalAddr returns the local address.
func (c *Connection) LocalAddr() net.Addr { return c.channel.LocalAddr() }

// RemoteAddr returns the peer address, or nil for an unconnected datagram channel.
func (c *Connection) RemoteAddr() net.Addr { return c.channel.RemoteAddr() }

// Key returns the selection key once registered.
func (c *Connection) Key() *SelectionKey { return c.key.Load() }

func (c *Connection) setKey(k *SelectionKey) { c.key.Store(k) }

// SetConnectResultHandler installs the handler notified by OnConnect and
// CheckAndReportConnectFailure.
func (c *Connection) SetConnectResultHandler(h ConnectResultHandler) {
	if h == nil {
		c.handler.Store(nil)
		return
	}
	c.handler.Store(&connectHandlerBox{h: h})
}

func (c *Connection) takeHandler() ConnectResultHandler {
	box := c.handler.Swap(nil)
	if box == nil {
		return nil
	}
	return box.h
}

// MarkConnecting moves INITIAL to CONNECTING.
func (c *Connection) MarkConnecting() bool {
	if !c.state.CompareAndSwap(int32(StateInitial), int32(StateConnecting)) {
		return false
	}
	c.logState(StateInitial, StateConnecting, "")
	return true
}

// OnConnect hands the finished handshake to the installed handler.
// Later calls do nothing.
func (c *Connection) OnConnect() {
	h := c.takeHandler()
	if h == nil {
		return
	}
	if err := h.Connected(); err != nil {
		c.logError(log.StageHandshake, err, "connected")
		h.Failed(err)
	}
}

// OnConnectReady is called by the selector when a pending connect may
// have finished.
func (c *Connection) OnConnectReady() {
	done, err := c.channel.FinishConnect()
	if err != nil {
		c.CheckAndReportConnectFailure(err)
		return
	}
	if !done {
		return
	}
	c.OnConnect()
}

// CheckAndReportConnectFailure reports err to the installed handler, or
// closes the connection if no handler is left.
func (c *Connection) CheckAndReportConnectFailure(err error) {
	c.logError(log.StageHandshake, err, "connect failure")
	if h := c.takeHandler(); h != nil {
		h.Failed(err)
		return
	}
	c.CloseQuietly()
}

// ResetProperties clears transient per-connection attributes.
func (c *Connection) ResetProperties() {
	c.mu.Lock()
	c.attributes = nil
	c.mu.Unlock()
}

// SetAttribute stores a transient attribute.
func (c *Connection) SetAttribute(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attributes == nil {
		c.attributes = make(map[string]any)
	}
	c.attributes[name] = value
}

// Attribute returns a transient attribute.
func (c *Connection) Attribute(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.attributes[name]
	return v, ok
}

// IsReadyForDispatch moves CONNECTING to CONNECTED. It returns true for
// exactly one caller.
func (c *Connection) IsReadyForDispatch() bool {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		return false
	}
	c.logState(StateConnecting, StateConnected, "")
	return true
}

// RegisterInterest adds flag to the interest set.
func (c *Connection) RegisterInterest(flag Interest) error {
	for {
		old := c.interest.Load()
		next := old | uint32(flag)
		if old == next {
			return nil
		}
		if c.interest.CompareAndSwap(old, next) {
			return c.Key().apply()
		}
	}
}

// DeregisterInterest removes flag from the interest set.
func (c *Connection) DeregisterInterest(flag Interest) error {
	for {
		old := c.interest.Load()
		next := old &^ uint32(flag)
		if old == next {
			return nil
		}
		if c.interest.CompareAndSwap(old, next) {
			return c.Key().apply()
		}
	}
}

// EnableReadInterest registers read interest. Only the first call has
// any effect.
func (c *Connection) EnableReadInterest() error {
	if !c.readEnabled.CompareAndSwap(false, true) {
		return nil
	}
	return c.RegisterInterest(InterestRead)
}

// AddCloseListener registers fn to run after the connection closes.
// If it is already closed, fn runs immediately.
func (c *Connection) AddCloseListener(fn func(*Connection)) {
	c.mu.Lock()
	if c.State() != StateClosed {
		c.closeListeners = append(c.closeListeners, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn(c)
}

// Close releases the channel and its selector registration.
// Safe to call more than once.
func (c *Connection) Close() error {
	return c.close("")
}

// CloseWithError closes the connection and records cause as the reason.
func (c *Connection) CloseWithError(cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return c.close(reason)
}

func (c *Connection) close(reason string) error {
	c.mu.Lock()
	old := ConnectionState(c.state.Swap(int32(StateClosed)))
	if old == StateClosed {
		c.mu.Unlock()
		return nil
	}
	listeners := c.closeListeners
	c.closeListeners = nil
	c.mu.Unlock()

	key := c.Key()
	err := c.channel.closeWith(func(fd int) {
		if key != nil && key.selector != nil {
			key.selector.remove(fd, key)
		}
	})
	c.logState(old, StateClosed, reason)

	if c.transport != nil {
		c.transport.connectionClosed(c)
	}
	for _, fn := range listeners {
		fn(c)
	}
	return err
}

// CloseQuietly closes the connection and ignores any error.
func (c *Connection) CloseQuietly() {
	_ = c.Close()
}

// Read reads from the channel without blocking.
func (c *Connection) Read(p []byte) (int, error) {
	n, err := c.channel.Read(p)
	if n > 0 {
		c.bytesRead.Add(uint64(n))
	}
	return n, err
}

// ReadFrom receives one datagram without blocking.
func (c *Connection) ReadFrom(p []byte) (int, net.Addr, error) {
	n, addr, err := c.channel.ReadFrom(p)
	if n > 0 {
		c.bytesRead.Add(uint64(n))
	}
	return n, addr, err
}

// Write writes to the channel without blocking.
func (c *Connection) Write(p []byte) (int, error) {
	return c.channel.Write(p)
}

// WriteTo sends one datagram to addr without blocking.
func (c *Connection) WriteTo(p []byte, addr net.Addr) (int, error) {
	return c.channel.WriteTo(p, addr)
}

// BytesRead returns the number of bytes read so far.
func (c *Connection) BytesRead() uint64 {
	return c.bytesRead.Load()
}

func (c *Connection) eventLog() log.Logger {
	if c.transport == nil {
		return log.NoopLogger{}
	}
	return c.transport.eventLog
}

func (c *Connection) baseEvent(stage log.Stage, category log.Category) log.Event {
	e := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id.String(),
		Network:      c.Network(),
		Stage:        stage,
		Category:     category,
	}
	if c.State() != StateClosed {
		if a := c.LocalAddr(); a != nil {
			e.LocalAddr = a.String()
		}
		if a := c.RemoteAddr(); a != nil {
			e.RemoteAddr = a.String()
		}
	}
	return e
}

func (c *Connection) logState(from, to ConnectionState, reason string) {
	stage := log.StageSetup
	switch to {
	case StateConnected:
		stage = log.StageDispatch
	case StateClosed:
		stage = log.StageClose
	}
	e := c.baseEvent(stage, log.CategoryState)
	e.StateChange = &log.StateChangeEvent{
		OldState: from.String(),
		NewState: to.String(),
		Reason:   reason,
	}
	c.eventLog().Log(e)
}

func (c *Connection) logError(stage log.Stage, err error, context string) {
	e := c.baseEvent(stage, log.CategoryError)
	e.Error = &log.ErrorEventData{Message: err.Error(), Context: context}
	c.eventLog().Log(e)
}
