// Package session holds the connections opened by niolink-dial and the
// processor that prints what they receive.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/niolink/niolink-go/pkg/connector"
	"github.com/niolink/niolink-go/pkg/discovery"
	"github.com/niolink/niolink-go/pkg/retry"
	"github.com/niolink/niolink-go/pkg/transport"
)

// MDNSPrefix marks a target that is resolved through DNS-SD,
// e.g. "mdns:bench-1".
const MDNSPrefix = "mdns:"

// ErrUnknownConnection is returned for an id that is not open.
var ErrUnknownConnection = errors.New("unknown connection")

// Config configures a Session.
type Config struct {
	// Output receives data and close notices (required).
	Output io.Writer

	// Resolver resolves mdns: targets (optional).
	Resolver *discovery.Resolver

	// ServiceType is the DNS-SD type browsed for mdns: targets.
	ServiceType string

	// Retries is the number of connect attempts. Values below 1 mean one.
	Retries int

	// Backoff configures the delay between attempts.
	Backoff retry.BackoffConfig

	// Connector overrides the connector configuration. Zero values keep
	// the transport defaults.
	Connector connector.Config

	Logger *slog.Logger
}

// Entry describes one open connection.
type Entry struct {
	ID     int
	Conn   *transport.Connection
	Target string
}

// Session dials connections on a running transport and tracks them by a
// small integer id for the interactive shell.
type Session struct {
	transport *transport.Transport
	tcp       *connector.TCPConnector
	udp       *connector.UDPConnector
	config    Config
	logger    *slog.Logger

	mu      sync.Mutex
	nextID  int
	entries map[int]*Entry
}

// New creates a session on t. t should run a processor built with
// NewPrinter so received data reaches Output.
func New(t *transport.Transport, config Config) *Session {
	if config.Logger == nil {
		config.Logger = t.Logger()
	}
	if config.Retries < 1 {
		config.Retries = 1
	}
	cc := connector.DefaultConfig(t)
	if config.Connector.ConnectionTimeout > 0 {
		cc.ConnectionTimeout = config.Connector.ConnectionTimeout
	}
	cc.ReuseAddress = cc.ReuseAddress || config.Connector.ReuseAddress
	cc.PreConfigure = config.Connector.PreConfigure
	cc.Logger = config.Logger

	return &Session{
		transport: t,
		tcp:       connector.NewTCPConnector(t, cc),
		udp:       connector.NewUDPConnector(t, cc),
		config:    config,
		logger:    config.Logger,
		nextID:    1,
		entries:   make(map[int]*Entry),
	}
}

// Dial connects to target over network ("tcp" or "udp"). target is
// host:port, or mdns:<instance> when a resolver is configured. An empty
// target with network "udp" opens an unbound receiver. local may be empty.
func (s *Session) Dial(ctx context.Context, network, target, local string) (*Entry, error) {
	remote, err := s.resolve(ctx, network, target)
	if err != nil {
		return nil, err
	}
	var localAddr net.Addr
	if local != "" {
		if localAddr, err = resolveAddr(network, local); err != nil {
			return nil, err
		}
	}

	b := retry.NewBackoffWithConfig(s.config.Backoff)
	conn, err := retry.Do(ctx, b, s.config.Retries, func(ctx context.Context) (*transport.Connection, error) {
		conn, err := s.connectOnce(ctx, network, remote, localAddr)
		if err != nil && !retryable(err) {
			return nil, retry.Permanent(err)
		}
		if err != nil {
			s.logger.Debug("connect attempt failed", "remote", target, "err", err)
		}
		return conn, err
	})
	if err != nil {
		return nil, err
	}

	if target == "" {
		target = "*"
	}
	return s.track(conn, target), nil
}

func (s *Session) connectOnce(ctx context.Context, network string, remote, local net.Addr) (*transport.Connection, error) {
	if network == "udp" {
		return s.udp.ConnectSync(ctx, remote, local, nil)
	}

	f := s.tcp.Connect(remote, local, nil)
	waitCtx, cancel := context.WithTimeout(ctx, s.tcp.Config().ConnectionTimeout)
	defer cancel()

	conn, err := f.Get(waitCtx)
	if err == nil {
		return conn, nil
	}
	if !f.Cancel() {
		if conn, err := f.Get(context.Background()); err == nil {
			return conn, nil
		}
	}
	switch {
	case ctx.Err() != nil:
		return nil, connector.ErrConnectInterrupted
	case errors.Is(err, context.DeadlineExceeded):
		return nil, connector.ErrConnectTimeout
	}
	return nil, err
}

func retryable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, connector.ErrConnectTimeout)
}

func (s *Session) resolve(ctx context.Context, network, target string) (net.Addr, error) {
	switch {
	case target == "":
		if network != "udp" {
			return nil, connector.ErrNoRemoteAddress
		}
		return nil, nil
	case strings.HasPrefix(target, MDNSPrefix):
		if s.config.Resolver == nil {
			return nil, fmt.Errorf("mdns target %q: no resolver configured", target)
		}
		instance := strings.TrimPrefix(target, MDNSPrefix)
		return s.config.Resolver.ResolveAddr(ctx, s.config.ServiceType, instance, network)
	}
	return resolveAddr(network, target)
}

func resolveAddr(network, addr string) (net.Addr, error) {
	switch network {
	case "tcp":
		return net.ResolveTCPAddr(network, addr)
	case "udp":
		return net.ResolveUDPAddr(network, addr)
	}
	return nil, fmt.Errorf("unsupported network %q", network)
}

func (s *Session) track(conn *transport.Connection, target string) *Entry {
	s.mu.Lock()
	e := &Entry{ID: s.nextID, Conn: conn, Target: target}
	s.nextID++
	s.entries[e.ID] = e
	s.mu.Unlock()

	conn.AddCloseListener(func(*transport.Connection) {
		s.mu.Lock()
		delete(s.entries, e.ID)
		s.mu.Unlock()
	})
	return e
}

// Get returns the open connection with id.
func (s *Session) Get(id int) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownConnection, id)
	}
	return e, nil
}

// List returns the open connections ordered by id.
func (s *Session) List() []*Entry {
	s.mu.Lock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Send writes data to connection id. Writes that would block are retried
// until ctx ends.
func (s *Session) Send(ctx context.Context, id int, data []byte) error {
	e, err := s.Get(id)
	if err != nil {
		return err
	}
	return Write(ctx, e.Conn, data)
}

// Close closes connection id.
func (s *Session) Close(id int) error {
	e, err := s.Get(id)
	if err != nil {
		return err
	}
	return e.Conn.Close()
}

// CloseAll closes every tracked connection.
func (s *Session) CloseAll() {
	for _, e := range s.List() {
		e.Conn.CloseQuietly()
	}
}

// Write writes all of data to a non-blocking connection.
func Write(ctx context.Context, conn *transport.Connection, data []byte) error {
	for len(data) > 0 {
		n, err := conn.Write(data)
		data = data[n:]
		switch {
		case errors.Is(err, transport.ErrWouldBlock):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
		case err != nil:
			return err
		}
	}
	return nil
}
