package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/niolink/niolink-go/pkg/log"
)

// Default transport settings.
const (
	DefaultConnectionTimeout = 30 * time.Second
	DefaultQueueSize         = 1024
)

// TransportConfig configures a Transport.
type TransportConfig struct {
	// Selectors is the number of selector goroutines (default: NumCPU).
	Selectors int

	// Strategy picks a built-in strategy (default: StrategyWorker).
	Strategy StrategyKind

	// Workers is the worker pool size for StrategyWorker (default: 2*NumCPU).
	Workers int

	// QueueSize is the worker queue capacity (default: 1024).
	QueueSize int

	// ReuseAddress is the SO_REUSEADDR default for new channels.
	ReuseAddress bool

	// ConnectionTimeout is the default connect timeout for blocking
	// connect helpers (default: 30s).
	ConnectionTimeout time.Duration

	// Configurator adjusts socket options (default: DefaultChannelConfigurator).
	Configurator ChannelConfigurator

	// Processor handles dispatched events (default: empty FilterChain).
	Processor Processor

	// CustomStrategy replaces the built-in strategy when set.
	CustomStrategy Strategy

	// CustomDistributor replaces the selector pool when set. No
	// selectors are started in that case.
	CustomDistributor Distributor

	// Logger for operational messages (default: slog.Default()).
	Logger *slog.Logger

	// EventLog receives connection lifecycle events (optional).
	EventLog log.Logger
}

// Transport owns the selectors, the distributor and the dispatch strategy.
type Transport struct {
	config   TransportConfig
	logger   *slog.Logger
	eventLog log.Logger

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	group       *errgroup.Group
	selectors   []*Selector
	distributor Distributor
	strategy    Strategy

	connsMu sync.RWMutex
	conns   map[*Connection]struct{}
}

// NewTransport creates a stopped transport. Zero config fields take
// their defaults.
func NewTransport(config TransportConfig) *Transport {
	if config.Selectors <= 0 {
		config.Selectors = runtime.NumCPU()
	}
	if config.Strategy == "" {
		config.Strategy = StrategyWorker
	}
	if config.Workers <= 0 {
		config.Workers = 2 * runtime.NumCPU()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.ConnectionTimeout <= 0 {
		config.ConnectionTimeout = DefaultConnectionTimeout
	}
	if config.Configurator == nil {
		config.Configurator = DefaultChannelConfigurator{}
	}
	if config.Processor == nil {
		config.Processor = NewFilterChain()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	eventLog := config.EventLog
	if eventLog == nil {
		eventLog = log.NoopLogger{}
	}
	return &Transport{
		config:   config,
		logger:   logger,
		eventLog: eventLog,
		conns:    make(map[*Connection]struct{}),
	}
}

// Start starts the selectors and the strategy.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrTransportRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	distributor := t.config.CustomDistributor
	var selectors []*Selector
	if distributor == nil {
		for i := 0; i < t.config.Selectors; i++ {
			sel, err := NewSelector(i, t)
			if err != nil {
				cancel()
				_ = g.Wait()
				return fmt.Errorf("failed to create selector: %w", err)
			}
			selectors = append(selectors, sel)
			g.Go(func() error { return sel.Run(gctx) })
		}
		distributor = NewRoundRobinDistributor(selectors)
	}

	strategy := t.config.CustomStrategy
	if strategy == nil {
		switch t.config.Strategy {
		case StrategySameThread:
			strategy = NewSameThreadStrategy(t.config.Processor)
		case StrategyWorker:
			ws := NewWorkerStrategy(t.config.Processor, t.config.Workers, t.config.QueueSize)
			g.Go(func() error { return ws.Run(gctx) })
			strategy = ws
		default:
			cancel()
			_ = g.Wait()
			return fmt.Errorf("unknown strategy %q", t.config.Strategy)
		}
	}

	t.cancel = cancel
	t.group = g
	t.selectors = selectors
	t.distributor = distributor
	t.strategy = strategy
	t.running = true

	t.logger.Info("transport started",
		"selectors", len(selectors),
		"strategy", string(t.config.Strategy))
	return nil
}

// Stop closes every tracked connection and stops the selectors.
func (t *Transport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	t.distributor = nil
	cancel, g := t.cancel, t.group
	t.mu.Unlock()

	t.connsMu.RLock()
	conns := make([]*Connection, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.connsMu.RUnlock()
	for _, c := range conns {
		c.CloseQuietly()
	}

	cancel()
	err := g.Wait()

	t.mu.Lock()
	t.strategy = nil
	t.selectors = nil
	t.mu.Unlock()

	t.logger.Info("transport stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// IsRunning reports whether Start succeeded and Stop was not called.
func (t *Transport) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// Distributor returns the active distributor, or nil when stopped.
func (t *Transport) Distributor() Distributor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.running {
		return nil
	}
	return t.distributor
}

// Strategy returns the active strategy, or nil when stopped.
func (t *Transport) Strategy() Strategy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.strategy
}

// Selectors returns the running selectors.
func (t *Transport) Selectors() []*Selector {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Selector(nil), t.selectors...)
}

// IsReuseAddress returns the SO_REUSEADDR default.
func (t *Transport) IsReuseAddress() bool { return t.config.ReuseAddress }

// ConnectionTimeout returns the default connect timeout.
func (t *Transport) ConnectionTimeout() time.Duration { return t.config.ConnectionTimeout }

// Configurator returns the channel configurator.
func (t *Transport) Configurator() ChannelConfigurator { return t.config.Configurator }

// Logger returns the operational logger.
func (t *Transport) Logger() *slog.Logger { return t.logger }

// EventLog returns the lifecycle event logger.
func (t *Transport) EventLog() log.Logger { return t.eventLog }

// NewConnection wraps ch in a Connection owned by this transport.
func (t *Transport) NewConnection(ch *Channel) *Connection {
	return newConnection(t, ch)
}

// ConnectionCount returns the number of registered, open connections.
func (t *Transport) ConnectionCount() int {
	t.connsMu.RLock()
	defer t.connsMu.RUnlock()
	return len(t.conns)
}

// RegistrationCompleted records a finished registration. Connectors
// call it from their registration completion handlers.
func (t *Transport) RegistrationCompleted(res RegistrationResult) {
	conn := res.Connection
	if conn == nil {
		return
	}
	t.connsMu.Lock()
	if conn.IsOpen() {
		t.conns[conn] = struct{}{}
	}
	t.connsMu.Unlock()

	index := -1
	if res.Key != nil && res.Key.selector != nil {
		index = res.Key.selector.Index()
	}
	e := conn.baseEvent(log.StageRegistration, log.CategoryRegistration)
	e.Registration = &log.RegistrationEvent{
		Interest: conn.Interest().String(),
		Selector: index,
	}
	t.eventLog.Log(e)
}

func (t *Transport) connectionClosed(conn *Connection) {
	t.connsMu.Lock()
	_, tracked := t.conns[conn]
	delete(t.conns, conn)
	t.connsMu.Unlock()

	if tracked {
		t.dispatch(conn, EventClose)
	}
}

// ExecuteEvent dispatches event for conn through the strategy and
// forwards the outcome to listener. Every dispatch is recorded in the
// event log.
func (t *Transport) ExecuteEvent(conn *Connection, event IOEvent, listener LifecycleListener) error {
	strategy := t.Strategy()
	if strategy == nil {
		return ErrTransportNotRunning
	}
	return strategy.ExecuteEvent(conn, event, &loggingListener{t: t, next: listener})
}

// dispatch runs an event whose outcome nobody waits for. An error
// outcome closes the connection.
func (t *Transport) dispatch(conn *Connection, event IOEvent) {
	err := t.ExecuteEvent(conn, event, ListenerFunc(func(ctx *Context, res ProcessorResult) {
		if res.Outcome == OutcomeError && event != EventClose {
			_ = conn.CloseWithError(res.Err)
		}
	}))
	if err != nil && event != EventClose {
		t.logger.Debug("dispatch failed", "conn_id", conn.ID(), "event", event, "err", err)
	}
}

// dispatchRead runs EventRead for conn, never concurrently with another
// read dispatch for the same connection. Readiness that arrives while a
// read is in flight schedules one more dispatch.
func (t *Transport) dispatchRead(conn *Connection) {
	for {
		if conn.readBusy.CompareAndSwap(false, true) {
			t.executeRead(conn)
			return
		}
		conn.readAgain.Store(true)
		if conn.readBusy.Load() {
			return
		}
	}
}

func (t *Transport) executeRead(conn *Connection) {
	conn.readAgain.Store(false)
	err := t.ExecuteEvent(conn, EventRead, ListenerFunc(func(ctx *Context, res ProcessorResult) {
		if res.Outcome == OutcomeError {
			_ = conn.CloseWithError(res.Err)
		}
		conn.readBusy.Store(false)
		if conn.readAgain.Swap(false) && conn.IsOpen() {
			t.dispatchRead(conn)
		}
	}))
	if err != nil {
		conn.readBusy.Store(false)
	}
}

type loggingListener struct {
	t    *Transport
	next LifecycleListener
}

func (l *loggingListener) OnResult(ctx *Context, res ProcessorResult) {
	if l.next != nil {
		l.next.OnResult(ctx, res)
	}
	if ctx.Event == EventRead && res.Outcome != OutcomeError {
		return
	}
	stage := log.StageDispatch
	if ctx.Event == EventRead || ctx.Event == EventWrite {
		stage = log.StageIO
	}
	e := ctx.Conn.baseEvent(stage, log.CategoryDispatch)
	e.Dispatch = &log.DispatchEvent{
		Event:       ctx.Event.String(),
		Outcome:     res.Outcome.String(),
		Reason:      ReasonString(res.Reason),
		ReadEnabled: ctx.Conn.ReadEnabled(),
	}
	l.t.eventLog.Log(e)
}
