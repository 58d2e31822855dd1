//go:build !linux

package reactor

import (
	"time"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/connpool"
	"github.com/onvifcam/onvifd/internal/logging"
)

// Handler mirrors the linux build's Handler interface so callers can
// compile on non-Linux platforms (the reactor itself requires epoll and
// only runs on Linux, matching the daemon's embedded-camera target).
type Handler interface {
	OnAccept()
	OnReadable(fd int)
	OnWritable(fd int)
	OnClose(fd int)
}

// Reactor is a non-functional stand-in outside Linux builds.
type Reactor struct{}

func New(listenFD int, table *connpool.Table, handler Handler, logger *logging.Logger, sweepEvery time.Duration) (*Reactor, error) {
	return nil, apperr.New(apperr.KindNotSupported, "reactor", "epoll reactor requires a linux build")
}

func (r *Reactor) RegisterClient(fd int) error   { return nil }
func (r *Reactor) DeregisterClient(fd int)       {}
func (r *Reactor) Run()                          {}
func (r *Reactor) Stop(timeout time.Duration) error { return nil }
