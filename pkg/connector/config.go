package connector

import (
	"log/slog"
	"time"

	"github.com/niolink/niolink-go/pkg/transport"
)

// Config is the immutable setup of a connector. It is copied when the
// connector is created and never re-read from the transport afterwards.
type Config struct {
	// ReuseAddress sets SO_REUSEADDR before bind.
	ReuseAddress bool

	// ConnectionTimeout bounds UDPConnector.ConnectSync.
	ConnectionTimeout time.Duration

	// PreConfigure runs on the connection right before the connect
	// syscall (optional).
	PreConfigure func(conn *transport.Connection) error

	// Logger for operational messages (default: the transport's logger).
	Logger *slog.Logger
}

// DefaultConfig snapshots the transport defaults.
func DefaultConfig(t *transport.Transport) Config {
	return Config{
		ReuseAddress:      t.IsReuseAddress(),
		ConnectionTimeout: t.ConnectionTimeout(),
		Logger:            t.Logger(),
	}
}

func (c Config) withDefaults(t *transport.Transport) Config {
	if c.Logger == nil {
		c.Logger = t.Logger()
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = t.ConnectionTimeout()
	}
	return c
}
