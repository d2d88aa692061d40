//go:build linux

package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/niolink/niolink-go/pkg/future"
)

const maxEvents = 128

type registration struct {
	channel  *Channel
	interest Interest
	conn     *Connection
	result   *future.Future[RegistrationResult]
}

// Selector is one epoll instance polled by a single goroutine.
//
// Registrations are queued by any goroutine and applied by the loop
// goroutine, which also delivers readiness to connections.
type Selector struct {
	index     int
	epfd      int
	wakeFd    int
	transport *Transport
	logger    *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending []registration
	keys    map[int]*SelectionKey
}

// NewSelector creates an epoll instance and its wake-up eventfd.
func NewSelector(index int, t *Transport) (*Selector, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, os.NewSyscallError("eventfd", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, os.NewSyscallError("epoll_ctl", err)
	}

	logger := slog.Default()
	if t != nil && t.logger != nil {
		logger = t.logger
	}
	return &Selector{
		index:     index,
		epfd:      epfd,
		wakeFd:    wakeFd,
		transport: t,
		logger:    logger.With("selector", index),
		keys:      make(map[int]*SelectionKey),
	}, nil
}

// Index returns the selector's position in the transport.
func (s *Selector) Index() int { return s.index }

// Register queues ch for registration with the given interest.
// The returned future resolves on the selector goroutine, and handler
// runs there before any readiness of ch is delivered.
func (s *Selector) Register(ch *Channel, interest Interest, conn *Connection,
	handler future.CompletionHandler[RegistrationResult]) *future.Future[RegistrationResult] {
	f := future.New[RegistrationResult]()
	f.AddHandler(handler)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		f.Failure(ErrSelectorClosed)
		return f
	}
	s.pending = append(s.pending, registration{channel: ch, interest: interest, conn: conn, result: f})
	s.wakeupLocked()
	s.mu.Unlock()
	return f
}

// Len returns the number of registered channels.
func (s *Selector) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func (s *Selector) wakeup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.wakeupLocked()
	}
}

func (s *Selector) wakeupLocked() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	// EAGAIN means the counter is already non-zero; the loop will wake.
	_, _ = unix.Write(s.wakeFd, buf[:])
}

func (s *Selector) drainWakeup() {
	var buf [8]byte
	for {
		if _, err := unix.Read(s.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

// Run polls until ctx is done. Pending registrations left at shutdown
// fail with ErrSelectorClosed.
func (s *Selector) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.wakeup)
	defer stop()
	defer s.shutdown()

	events := make([]unix.EpollEvent, maxEvents)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := unix.EpollWait(s.epfd, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return os.NewSyscallError("epoll_wait", err)
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == s.wakeFd {
				s.drainWakeup()
				s.processPending()
				continue
			}
			s.mu.Lock()
			key := s.keys[fd]
			s.mu.Unlock()
			if key != nil {
				s.handle(key, events[i].Events)
			}
		}
	}
}

func (s *Selector) processPending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, r := range pending {
		key, err := s.add(r)
		if err != nil {
			r.result.Failure(err)
			continue
		}
		r.result.Result(RegistrationResult{Key: key, Connection: r.conn})
	}
}

func (s *Selector) add(r registration) (*SelectionKey, error) {
	key := &SelectionKey{selector: s, channel: r.channel, conn: r.conn}
	err := r.channel.withFd(func(fd int) error {
		s.mu.Lock()
		_, exists := s.keys[fd]
		s.mu.Unlock()
		if exists {
			return ErrAlreadyRegistered
		}
		if r.conn.Key() != nil {
			return ErrAlreadyRegistered
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return ErrSelectorClosed
		}
		for {
			old := r.conn.interest.Load()
			if r.conn.interest.CompareAndSwap(old, old|uint32(r.interest)) {
				break
			}
		}
		ev := unix.EpollEvent{Events: epollEvents(r.conn.Interest()), Fd: int32(fd)}
		if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return os.NewSyscallError("epoll_ctl", err)
		}
		s.keys[fd] = key
		r.conn.setKey(key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// modify is called with the channel lock held.
func (s *Selector) modify(fd int, interest Interest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSelectorClosed
	}
	ev := unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	return os.NewSyscallError("epoll_ctl", unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, fd, &ev))
}

// remove is called with the channel lock held, before the fd is closed.
func (s *Selector) remove(fd int, key *SelectionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[fd] != key {
		return
	}
	delete(s.keys, fd)
	if !s.closed {
		_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
}

func (s *Selector) handle(key *SelectionKey, events uint32) {
	conn := key.conn
	interest := conn.Interest()

	if interest.Has(InterestConnect) && events&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		conn.OnConnectReady()
		interest = conn.Interest()
	}
	if interest.Has(InterestRead) && events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		s.transport.dispatchRead(conn)
	}
	if interest.Has(InterestWrite) && events&unix.EPOLLOUT != 0 {
		s.transport.dispatch(conn, EventWrite)
	}
}

func (s *Selector) shutdown() {
	s.mu.Lock()
	s.closed = true
	pending := s.pending
	s.pending = nil
	_ = unix.Close(s.wakeFd)
	_ = unix.Close(s.epfd)
	s.mu.Unlock()

	for _, r := range pending {
		r.result.Failure(ErrSelectorClosed)
	}
	s.logger.Debug("selector stopped")
}

func epollEvents(i Interest) uint32 {
	ev := uint32(unix.EPOLLET)
	if i.Has(InterestRead) {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if i.Has(InterestWrite) || i.Has(InterestConnect) {
		ev |= unix.EPOLLOUT
	}
	return ev
}
