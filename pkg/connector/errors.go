package connector

import (
	"errors"
	"fmt"
	"net"
)

// Connector errors.
var (
	ErrConnectTimeout      = errors.New("connect timed out")
	ErrConnectInterrupted  = errors.New("connect interrupted")
	ErrConnectCancelled    = errors.New("connect cancelled")
	ErrNoRemoteAddress     = errors.New("remote address required")
	ErrHandshakeIncomplete = errors.New("handshake not finished")
)

// ConnectError is a failed connect attempt.
type ConnectError struct {
	Op      string // "dial", "bind", "configure", "register", "handshake"
	Network string
	Addr    net.Addr // remote address, or local for "bind"
	Err     error
}

func (e *ConnectError) Error() string {
	if e.Addr == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Network, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Network, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func wrapErr(op, network string, addr net.Addr, err error) error {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectError{Op: op, Network: network, Addr: addr, Err: err}
}
