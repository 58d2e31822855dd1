//go:build !linux

package server

import (
	"github.com/onvifcam/onvifd/internal/auth"
	"github.com/onvifcam/onvifd/internal/bufferpool"
	"github.com/onvifcam/onvifd/internal/connpool"
	"github.com/onvifcam/onvifd/internal/httpserver"
	"github.com/onvifcam/onvifd/internal/logging"
	"github.com/onvifcam/onvifd/internal/ratelimit"
	"github.com/onvifcam/onvifd/internal/soap"
	"github.com/onvifcam/onvifd/internal/workerpool"
)

const opServer = "server"

// Router mirrors the linux build's Router contract so callers can compile
// against this package on any platform.
type Router interface {
	ServiceForPath(path string) (service string, ok bool)
	ServeSnapshot(profileToken string) ([]byte, error)
	ServeHealth() string
}

// Server is a non-functional stand-in on platforms without the raw
// epoll/socket syscalls this component needs — this daemon's reactor is
// Linux-only per spec.md §4.4, so the request engine is too.
type Server struct{}

// New always fails on non-Linux platforms.
func New(
	listenFD int,
	table *connpool.Table,
	pool *bufferpool.Pool,
	workers *workerpool.Pool,
	dispatcher *soap.Dispatcher,
	digest *auth.DigestAuthenticator,
	router Router,
	connLimiter *ratelimit.Limiter,
	metrics *httpserver.Metrics,
	logger *logging.Logger,
	registerClient func(fd int) error,
	deregisterClient func(fd int),
) *Server {
	return &Server{}
}

func (s *Server) OnAccept()         {}
func (s *Server) OnReadable(fd int) {}
func (s *Server) OnWritable(fd int) {}
func (s *Server) OnClose(fd int)    {}
