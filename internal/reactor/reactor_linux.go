//go:build linux

// Package reactor is the Epoll Reactor of spec.md §4.4: a single-threaded
// readiness loop over the listening socket (level-triggered) and every
// accepted client connection (edge-triggered), driving a periodic timeout
// sweep of the Connection Table (every connpool.SweepInterval, 5 s, unless
// New is given another interval). Grounded on the pack's only example of raw
// golang.org/x/sys/unix syscall plumbing,
// other_examples/31c3f1e2_ehrlich-b-go-ublk__internal-queue-runner.go.go
// (fd lifecycle, syscall error wrapping style) — the teacher repo itself
// has no networking-reactor code, so the epoll loop's shape follows
// spec.md §4.4 directly.
package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/connpool"
	"github.com/onvifcam/onvifd/internal/logging"
)

const opReactor = "reactor"

const maxEvents = 128

// Handler is invoked by the reactor for every readiness event. readable is
// true for EPOLLIN, writable for EPOLLOUT; hangup/error conditions
// deregister the fd and invoke OnClose instead of OnReadable/OnWritable.
type Handler interface {
	// OnAccept is called (level-triggered) when the listening socket is
	// readable; it should accept as many pending connections as possible.
	OnAccept()
	// OnReadable is called (edge-triggered) when a client fd has data
	// ready.
	OnReadable(fd int)
	// OnWritable is called (edge-triggered) when a client fd can accept
	// more output.
	OnWritable(fd int)
	// OnClose is called when a client fd is being torn down, whether from
	// a hangup/error event or a sweep timeout.
	OnClose(fd int)
}

// Reactor owns one epoll instance, the listening socket, and drives the
// Connection Table's timeout sweep on a fixed interval.
type Reactor struct {
	epfd       int
	listenFD   int
	table      *connpool.Table
	handler    Handler
	logger     *logging.Logger
	sweepEvery time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Reactor bound to listenFD (already listen(2)'d by the
// caller) and table. sweepEvery falls back to connpool.SweepInterval when
// <= 0.
func New(listenFD int, table *connpool.Table, handler Handler, logger *logging.Logger, sweepEvery time.Duration) (*Reactor, error) {
	if logger == nil {
		logger = logging.GetLogger("reactor")
	}
	if sweepEvery <= 0 {
		sweepEvery = connpool.SweepInterval
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, opReactor, "epoll_create1 failed", err)
	}

	r := &Reactor{
		epfd:       epfd,
		listenFD:   listenFD,
		table:      table,
		handler:    handler,
		logger:     logger,
		sweepEvery: sweepEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	// The listener is registered level-triggered: OnAccept should drain
	// with accept() until EAGAIN, but a missed wakeup due to edge-triggered
	// semantics would be worse than a redundant one, per spec.md §4.4
	// "level-triggered listener".
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, listenFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(listenFD),
	}); err != nil {
		unix.Close(epfd)
		return nil, apperr.Wrap(apperr.KindIO, opReactor, "epoll_ctl add listener failed", err)
	}
	return r, nil
}

// RegisterClient adds fd to the epoll set, edge-triggered for both
// readability and writability, per spec.md §4.4 "edge-triggered client
// sockets".
func (r *Reactor) RegisterClient(fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return apperr.Wrap(apperr.KindIO, opReactor, "epoll_ctl add client failed", err)
	}
	return nil
}

// DeregisterClient removes fd from the epoll set. Safe to call even if fd
// was never registered or already removed (EBADF/ENOENT are ignored).
func (r *Reactor) DeregisterClient(fd int) {
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Run drives the reactor loop until Stop is called or epoll_wait fails.
// It blocks the calling goroutine — callers typically run it in a
// dedicated goroutine, per spec.md §4.4 "single-threaded".
func (r *Reactor) Run() {
	defer close(r.doneCh)

	events := make([]unix.EpollEvent, maxEvents)
	nextSweep := time.Now().Add(r.sweepEvery)

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		timeout := int(time.Until(nextSweep) / time.Millisecond)
		if timeout < 0 {
			timeout = 0
		}

		n, err := unix.EpollWait(r.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			r.logger.WithError(err).Error("epoll_wait failed")
			return
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)

			switch {
			case fd == r.listenFD:
				r.handler.OnAccept()
			case ev.Events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0:
				r.DeregisterClient(fd)
				r.handler.OnClose(fd)
			default:
				if ev.Events&unix.EPOLLIN != 0 {
					r.handler.OnReadable(fd)
				}
				if ev.Events&unix.EPOLLOUT != 0 {
					r.handler.OnWritable(fd)
				}
			}
		}

		if time.Now().After(nextSweep) {
			r.runSweep()
			nextSweep = time.Now().Add(r.sweepEvery)
		}
	}
}

func (r *Reactor) runSweep() {
	expired := r.table.SweepTimeouts(time.Now())
	for _, fd := range expired {
		r.DeregisterClient(fd)
		r.handler.OnClose(fd)
	}
	if len(expired) > 0 {
		r.logger.WithFields(logging.Fields{"count": len(expired)}).Debug("swept timed-out connections")
	}
}

// Stop signals Run to exit and waits for it to return, bounded by the
// caller via timeout.
func (r *Reactor) Stop(timeout time.Duration) error {
	close(r.stopCh)
	select {
	case <-r.doneCh:
		unix.Close(r.epfd)
		return nil
	case <-time.After(timeout):
		unix.Close(r.epfd)
		return fmt.Errorf("%s: reactor did not stop within %s", opReactor, timeout)
	}
}
