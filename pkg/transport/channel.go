package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Channel is a non-blocking OS socket.
//
// The channel mutex serializes selector registration with Close, so a
// closed descriptor number is never added to or left in an epoll set.
type Channel struct {
	mu     sync.Mutex
	fd     int
	closed bool

	network string
	family  int
	sotype  int

	connected atomic.Bool
	pending   atomic.Bool
}

// OpenChannel creates a non-blocking, close-on-exec socket for network
// ("tcp", "tcp4", "tcp6", "udp", "udp4" or "udp6") in the given family.
func OpenChannel(network string, family int) (*Channel, error) {
	sotype, err := socketType(network)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(family, sotype, 0)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("setnonblock", err)
	}
	if family == unix.AF_INET6 {
		// Dual-stack so IPv4-mapped peers stay reachable.
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	}
	return &Channel{fd: fd, network: network, family: family, sotype: sotype}, nil
}

// Fd returns the descriptor, or -1 once closed.
func (c *Channel) Fd() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return -1
	}
	return c.fd
}

// Network returns the network the channel was opened for.
func (c *Channel) Network() string { return c.network }

// Family returns the address family.
func (c *Channel) Family() int { return c.family }

// IsStream reports whether the channel is connection-oriented.
func (c *Channel) IsStream() bool { return c.sotype == unix.SOCK_STREAM }

// IsOpen reports whether Close has not been called.
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// withFd runs fn with the descriptor under the channel lock.
func (c *Channel) withFd(fn func(fd int) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	return fn(c.fd)
}

func (c *Channel) setBool(level, opt int, name string, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return c.withFd(func(fd int) error {
		return os.NewSyscallError(name, unix.SetsockoptInt(fd, level, opt, v))
	})
}

// SetReuseAddress toggles SO_REUSEADDR.
func (c *Channel) SetReuseAddress(on bool) error {
	return c.setBool(unix.SOL_SOCKET, unix.SO_REUSEADDR, "setsockopt", on)
}

// ReuseAddress reports the current SO_REUSEADDR value.
func (c *Channel) ReuseAddress() (bool, error) {
	var v int
	err := c.withFd(func(fd int) error {
		var err error
		v, err = unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR)
		return os.NewSyscallError("getsockopt", err)
	})
	return v != 0, err
}

// SetNoDelay toggles TCP_NODELAY. It is a no-op for datagram channels.
func (c *Channel) SetNoDelay(on bool) error {
	if !c.IsStream() {
		return nil
	}
	return c.setBool(unix.IPPROTO_TCP, unix.TCP_NODELAY, "setsockopt", on)
}

// SetKeepAlive toggles SO_KEEPALIVE. It is a no-op for datagram channels.
func (c *Channel) SetKeepAlive(on bool) error {
	if !c.IsStream() {
		return nil
	}
	return c.setBool(unix.SOL_SOCKET, unix.SO_KEEPALIVE, "setsockopt", on)
}

// Bind binds the channel to a local address.
func (c *Channel) Bind(addr net.Addr) error {
	sa, err := toSockaddr(c.family, addr)
	if err != nil {
		return err
	}
	return c.withFd(func(fd int) error {
		return os.NewSyscallError("bind", unix.Bind(fd, sa))
	})
}

// Connect starts a non-blocking connect. It returns true when the
// connect finished immediately and false when it is still pending.
// For datagram channels Connect associates the socket with a fixed
// peer and always completes immediately.
func (c *Channel) Connect(addr net.Addr) (bool, error) {
	sa, err := toSockaddr(c.family, addr)
	if err != nil {
		return false, err
	}
	err = c.withFd(func(fd int) error {
		return unix.Connect(fd, sa)
	})
	switch {
	case err == nil:
		c.connected.Store(true)
		return true, nil
	case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EINTR):
		c.pending.Store(true)
		return false, nil
	case errors.Is(err, ErrConnectionClosed):
		return false, err
	default:
		return false, os.NewSyscallError("connect", err)
	}
}

// IsConnectionPending reports whether a connect was started but has not
// finished.
func (c *Channel) IsConnectionPending() bool {
	return c.pending.Load() && !c.connected.Load()
}

// IsConnected reports whether the channel has a peer.
func (c *Channel) IsConnected() bool {
	return c.connected.Load()
}

// FinishConnect completes a pending connect. It returns false while the
// handshake is still in progress and an error if it failed.
func (c *Channel) FinishConnect() (bool, error) {
	if c.connected.Load() {
		return true, nil
	}
	var done bool
	err := c.withFd(func(fd int) error {
		soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return os.NewSyscallError("getsockopt", err)
		}
		if soerr != 0 {
			return os.NewSyscallError("connect", unix.Errno(soerr))
		}
		if _, err := unix.Getpeername(fd); err != nil {
			if errors.Is(err, unix.ENOTCONN) {
				return nil
			}
			return os.NewSyscallError("getpeername", err)
		}
		done = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if done {
		c.connected.Store(true)
		c.pending.Store(false)
	}
	return done, nil
}

// LocalAddr returns the bound local address, or nil.
func (c *Channel) LocalAddr() net.Addr {
	var addr net.Addr
	_ = c.withFd(func(fd int) error {
		sa, err := unix.Getsockname(fd)
		if err == nil {
			addr = fromSockaddr(c.sotype, sa)
		}
		return err
	})
	return addr
}

// RemoteAddr returns the peer address, or nil when unconnected.
func (c *Channel) RemoteAddr() net.Addr {
	var addr net.Addr
	_ = c.withFd(func(fd int) error {
		sa, err := unix.Getpeername(fd)
		if err == nil {
			addr = fromSockaddr(c.sotype, sa)
		}
		return err
	})
	return addr
}

// Read reads available bytes. It returns ErrWouldBlock when nothing is
// available and io.EOF when a stream peer has shut down.
func (c *Channel) Read(p []byte) (int, error) {
	var n int
	err := c.withFd(func(fd int) error {
		for {
			var err error
			n, err = unix.Read(fd, p)
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
	})
	switch {
	case errors.Is(err, unix.EAGAIN):
		return 0, ErrWouldBlock
	case err != nil:
		if errors.Is(err, ErrConnectionClosed) {
			return 0, err
		}
		return 0, os.NewSyscallError("read", err)
	case n == 0 && len(p) > 0 && c.IsStream():
		return 0, io.EOF
	}
	return n, nil
}

// ReadFrom receives one datagram and its sender.
func (c *Channel) ReadFrom(p []byte) (int, net.Addr, error) {
	var (
		n    int
		from unix.Sockaddr
	)
	err := c.withFd(func(fd int) error {
		for {
			var err error
			n, from, err = unix.Recvfrom(fd, p, 0)
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
	})
	switch {
	case errors.Is(err, unix.EAGAIN):
		return 0, nil, ErrWouldBlock
	case errors.Is(err, ErrConnectionClosed):
		return 0, nil, err
	case err != nil:
		return 0, nil, os.NewSyscallError("recvfrom", err)
	}
	var addr net.Addr
	if from != nil {
		addr = fromSockaddr(c.sotype, from)
	}
	return n, addr, nil
}

// Write writes as much of p as the socket buffer accepts. It returns
// ErrWouldBlock when nothing could be written.
func (c *Channel) Write(p []byte) (int, error) {
	var n int
	err := c.withFd(func(fd int) error {
		for {
			var err error
			n, err = unix.Write(fd, p)
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
	})
	switch {
	case errors.Is(err, unix.EAGAIN):
		return 0, ErrWouldBlock
	case errors.Is(err, ErrConnectionClosed):
		return 0, err
	case err != nil:
		return 0, os.NewSyscallError("write", err)
	}
	return n, nil
}

// WriteTo sends one datagram to addr.
func (c *Channel) WriteTo(p []byte, addr net.Addr) (int, error) {
	sa, err := toSockaddr(c.family, addr)
	if err != nil {
		return 0, err
	}
	err = c.withFd(func(fd int) error {
		for {
			err := unix.Sendto(fd, p, 0, sa)
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
	})
	switch {
	case errors.Is(err, unix.EAGAIN):
		return 0, ErrWouldBlock
	case errors.Is(err, ErrConnectionClosed):
		return 0, err
	case err != nil:
		return 0, os.NewSyscallError("sendto", err)
	}
	return len(p), nil
}

// Close releases the descriptor. Safe to call more than once.
func (c *Channel) Close() error {
	return c.closeWith(nil)
}

// closeWith runs before(fd) under the channel lock and then closes the
// descriptor, unless the channel was already closed.
func (c *Channel) closeWith(before func(fd int)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if before != nil {
		before(c.fd)
	}
	return os.NewSyscallError("close", unix.Close(c.fd))
}
