package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/niolink/niolink-go/pkg/transport"
)

// Printer is a filter that drains readable connections and writes what
// it reads to an io.Writer, one line per read, prefixed with the short
// connection id. Peer shutdown closes the connection.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
	buf []byte
}

// NewPrinter creates a Printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out, buf: make([]byte, 64*1024)}
}

// SetOutput redirects output, e.g. to the readline stdout.
func (p *Printer) SetOutput(out io.Writer) {
	p.mu.Lock()
	p.out = out
	p.mu.Unlock()
}

// HandleEvent implements transport.Filter.
func (p *Printer) HandleEvent(ctx *transport.Context) (transport.NextAction, error) {
	switch ctx.Event {
	case transport.EventRead:
		eof, err := p.drain(ctx.Conn)
		if eof {
			// Close dispatches EventClose, which prints; the lock is free here.
			err = ctx.Conn.Close()
		}
		return transport.Stop(), err
	case transport.EventClose:
		p.printf("[%s] closed\n", shortID(ctx.Conn))
	}
	return transport.Invoke(), nil
}

// drain reads until the socket would block. It reports whether the peer
// shut down.
func (p *Printer) drain(conn *transport.Connection) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	unbound := conn.RemoteAddr() == nil
	for {
		var (
			n    int
			from net.Addr
			err  error
		)
		if unbound {
			n, from, err = conn.ReadFrom(p.buf)
		} else {
			n, err = conn.Read(p.buf)
		}
		switch {
		case errors.Is(err, transport.ErrWouldBlock):
			return false, nil
		case errors.Is(err, io.EOF):
			return true, nil
		case err != nil:
			return false, err
		}

		if from != nil {
			fmt.Fprintf(p.out, "[%s] %s < %q\n", shortID(conn), from, p.buf[:n])
		} else {
			fmt.Fprintf(p.out, "[%s] < %q\n", shortID(conn), p.buf[:n])
		}
	}
}

func (p *Printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func shortID(conn *transport.Connection) string {
	return conn.ID().String()[:8]
}

var _ transport.Filter = (*Printer)(nil)
