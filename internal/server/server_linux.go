//go:build linux

// Package server is the glue layer spec.md §2's data-flow diagram names
// but does not give its own component budget: it implements
// reactor.Handler, turning epoll readiness events into leased buffers,
// parsed HTTP/1.1 requests, Digest authentication, SOAP dispatch, and
// written responses, handing CPU-bound work to the Worker Pool so the
// reactor goroutine itself never blocks. Grounded on the teacher's
// pattern of a thin coordinating layer over already-tested leaf
// components (internal/mediamtx's controller coordinating path
// managers) — this package holds no business logic of its own, only
// wiring.
package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/onvifcam/onvifd/internal/apperr"
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

// defaultConnRatePerSecond/defaultConnBurst bound the fallback connection
// admission limiter installed by New when no connLimiter is supplied,
// per SPEC_FULL.md §4.15.
const (
	defaultConnRatePerSecond = 5.0
	defaultConnBurst         = 20
)

// Router resolves a request path to the (service, operation) pair the
// SOAP Dispatcher should invoke, and serves the non-SOAP endpoints named
// directly in spec.md §6's HTTP surface (snapshot, healthz).
type Router interface {
	ServiceForPath(path string) (service string, ok bool)
	ServeSnapshot(profileToken string) ([]byte, error)
	ServeHealth() string
}

// Server implements reactor.Handler: accept, read, parse, authenticate,
// dispatch, write — one Connection at a time, with all blocking work
// pushed onto the Worker Pool.
type Server struct {
	listenFD   int
	table      *connpool.Table
	pool       *bufferpool.Pool
	workers    *workerpool.Pool
	dispatcher *soap.Dispatcher
	digest     *auth.DigestAuthenticator
	router     Router
	metrics    *httpserver.Metrics
	logger     *logging.Logger

	// connLimiter admits or rejects new connections per client IP, per
	// SPEC_FULL.md §4.15.
	connLimiter *ratelimit.Limiter

	registerClient   func(fd int) error
	deregisterClient func(fd int)

	mu   sync.Mutex
	byFD map[int]*connpool.Connection
}

// New builds a Server. registerClient/deregisterClient are the bound
// reactor methods, injected rather than imported directly so this
// package does not take a circular dependency on internal/reactor.
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
	if logger == nil {
		logger = logging.GetLogger("server")
	}
	if metrics == nil {
		metrics = &httpserver.Metrics{}
	}
	if connLimiter == nil {
		connLimiter = ratelimit.New(defaultConnRatePerSecond, defaultConnBurst)
	}
	return &Server{
		listenFD:         listenFD,
		table:            table,
		pool:             pool,
		workers:          workers,
		dispatcher:       dispatcher,
		digest:           digest,
		router:           router,
		connLimiter:      connLimiter,
		metrics:          metrics,
		logger:           logger,
		registerClient:   registerClient,
		deregisterClient: deregisterClient,
		byFD:             map[int]*connpool.Connection{},
	}
}

// OnAccept drains pending connections on the listening socket until
// EAGAIN, per spec.md §4.4's level-triggered listener contract.
func (s *Server) OnAccept() {
	for {
		fd, sa, err := unix.Accept4(s.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			s.logger.WithError(err).Error("accept4 failed")
			return
		}

		remoteAddr := remoteAddrOf(sa)
		if !s.connLimiter.Allow(clientIPOf(remoteAddr)) {
			s.logger.Warn("connection rate limit exceeded, rejecting client")
			unix.Close(fd)
			continue
		}

		buf, err := s.pool.Acquire()
		if err != nil {
			s.logger.WithError(err).Warn("buffer pool exhausted, dropping new connection")
			unix.Close(fd)
			continue
		}

		c := connpool.Create(fd, buf, remoteAddr, time.Now())
		s.table.Insert(c)

		s.mu.Lock()
		s.byFD[fd] = c
		s.mu.Unlock()

		s.metrics.ConnectionOpened()

		if err := s.registerClient(fd); err != nil {
			s.logger.WithCorrelationID(c.CorrelationID.String()).WithError(err).Error("failed to register client fd with reactor")
			s.closeConn(c)
		}
	}
}

// OnReadable reads available bytes into the connection's leased buffer
// and, once a full request (or a terminal parse error) is available,
// submits handling to the Worker Pool.
func (s *Server) OnReadable(fd int) {
	c := s.lookup(fd)
	if c == nil {
		return
	}

	if c.BodyCursor >= len(c.Buffer.Data) {
		s.rejectAndClose(c, 413, "request too large")
		return
	}

	n, err := unix.Read(fd, c.Buffer.Data[c.BodyCursor:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		s.closeConn(c)
		return
	}
	if n == 0 {
		s.closeConn(c)
		return
	}
	c.BodyCursor += n
	c.Touch(time.Now())

	req, perr := httpserver.ParseRequest(c.Buffer.Data[:c.BodyCursor], len(c.Buffer.Data), c.ClientAddr)
	if perr == nil {
		c.State = connpool.StateProcessing
		s.submit(c, req)
		return
	}
	if pe, ok := perr.(*httpserver.ParseError); ok {
		c.State = connpool.StateProcessing
		s.submitParseError(c, pe)
	}
	// Any other error means the request is simply incomplete so far —
	// stay in StateReadingHeaders/Body and wait for the next readable
	// event.
}

// OnWritable is a no-op: responses are written synchronously from the
// worker goroutine once fully built. ONVIF SOAP responses are small
// enough on this daemon's target hardware that partial-write
// back-pressure is not expected in practice.
func (s *Server) OnWritable(fd int) {}

// OnClose tears down the connection for fd, releasing its buffer and any
// stream binding.
func (s *Server) OnClose(fd int) {
	c := s.lookup(fd)
	if c == nil {
		unix.Close(fd)
		return
	}
	s.closeConn(c)
}

func (s *Server) lookup(fd int) *connpool.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byFD[fd]
}

func (s *Server) closeConn(c *connpool.Connection) {
	s.table.Remove(c)
	s.deregisterClient(c.FD)

	s.mu.Lock()
	delete(s.byFD, c.FD)
	s.mu.Unlock()

	if c.Buffer != nil {
		_ = c.Buffer.Release()
		c.Buffer = nil
	}
	if c.StreamBindingRelease != nil {
		c.StreamBindingRelease()
		c.StreamBindingRelease = nil
	}
	s.metrics.ConnectionClosed()
	unix.Close(c.FD)
}

func (s *Server) resetForKeepAlive(c *connpool.Connection) {
	c.BodyCursor = 0
	c.State = connpool.StateKeepAlive
	c.KeepAliveCount++
	c.Touch(time.Now())
}

func (s *Server) rejectAndClose(c *connpool.Connection, status int, reason string) {
	rw := httpserver.NewResponseWriter(status)
	rw.PlainText(reason)
	s.writeBytes(c, rw.Bytes(time.Now()))
	s.closeConn(c)
}

func (s *Server) submit(c *connpool.Connection, req *httpserver.Request) {
	err := s.workers.Submit(context.Background(), func(ctx context.Context) {
		start := time.Now()
		rw := s.handle(req, c.CorrelationID.String())
		elapsed := time.Since(start)

		out := rw.Bytes(time.Now())
		s.metrics.Record(rw.Status(), uint64(elapsed.Microseconds()), uint64(len(out)))
		s.writeBytes(c, out)

		if req.KeepAlive && c.KeepAliveCount < httpserver.DefaultKeepAliveLimit {
			s.resetForKeepAlive(c)
		} else {
			s.closeConn(c)
		}
	})
	if err != nil {
		s.logger.WithCorrelationID(c.CorrelationID.String()).WithError(err).Warn("worker pool rejected task, closing connection")
		s.closeConn(c)
	}
}

func (s *Server) submitParseError(c *connpool.Connection, pe *httpserver.ParseError) {
	err := s.workers.Submit(context.Background(), func(ctx context.Context) {
		rw := httpserver.NewResponseWriter(pe.Status)
		for k, v := range pe.Headers {
			rw.SetHeader(k, v)
		}
		rw.PlainText(pe.Reason)
		out := rw.Bytes(time.Now())
		s.metrics.Record(pe.Status, 0, uint64(len(out)))
		s.writeBytes(c, out)
		s.closeConn(c)
	})
	if err != nil {
		s.closeConn(c)
	}
}

func (s *Server) writeBytes(c *connpool.Connection, data []byte) {
	for len(data) > 0 {
		n, err := unix.Write(c.FD, data)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				continue
			}
			return
		}
		data = data[n:]
	}
}

// handle runs the authenticate -> SOAP-dispatch pipeline for req and
// returns the rendered response. Non-SOAP endpoints (snapshot, healthz)
// are resolved by Router before falling through to SOAP handling.
// correlationID is the owning Connection's identifier, threaded into
// every log line and SOAP fault this request produces.
func (s *Server) handle(req *httpserver.Request, correlationID string) *httpserver.ResponseWriter {
	log := s.logger.WithCorrelationID(correlationID)

	service, isSOAP := s.router.ServiceForPath(req.Target)
	if !isSOAP {
		return s.handleNonSOAP(req, correlationID)
	}

	challenge, err := s.authenticate(req, clientIPOf(req.RemoteAddr))
	if err != nil {
		log.WithError(err).Warn("authentication failed")
		rw := s.faultResponse(err, correlationID)
		if challenge != "" {
			rw.SetHeader("WWW-Authenticate", challenge)
		}
		return rw
	}

	env, err := soap.ParseEnvelope(req.Body)
	if err != nil {
		log.WithError(err).Warn("failed to parse SOAP envelope")
		return s.faultResponse(err, correlationID)
	}
	operation := env.BodyElementName()

	respBody, err := s.dispatcher.Dispatch(service, operation, env.Body.InnerXML)
	if err != nil {
		log.WithError(err).Warn("SOAP dispatch failed")
		return s.faultResponse(err, correlationID)
	}

	rw := httpserver.NewResponseWriter(200)
	rw.SetHeader("Content-Type", "application/soap+xml; charset=utf-8")
	rw.Write(wrapEnvelope(respBody))
	return rw
}

func (s *Server) handleNonSOAP(req *httpserver.Request, correlationID string) *httpserver.ResponseWriter {
	switch {
	case req.Target == "/healthz" || strings.HasPrefix(req.Target, "/healthz?"):
		rw := httpserver.NewResponseWriter(200)
		rw.PlainText(s.router.ServeHealth())
		return rw
	case req.Target == "/snapshot" || strings.HasPrefix(req.Target, "/snapshot?"):
		token := queryParam(req.Target, "profile")
		jpeg, err := s.router.ServeSnapshot(token)
		if err != nil {
			return s.faultResponse(err, correlationID)
		}
		rw := httpserver.NewResponseWriter(200)
		rw.SetHeader("Content-Type", "image/jpeg")
		rw.Write(jpeg)
		return rw
	default:
		rw := httpserver.NewResponseWriter(404)
		rw.PlainText("not found")
		return rw
	}
}

// authenticate verifies req's Authorization header and returns a
// WWW-Authenticate challenge value whenever the caller must be re-prompted
// (missing header, or a verification failure that warrants a fresh nonce).
// Nonce issuance is rate-limited per clientIP by the DigestAuthenticator,
// per SPEC_FULL.md §4.15.
func (s *Server) authenticate(req *httpserver.Request, clientIP string) (challenge string, err error) {
	authz := req.Header("Authorization")
	if authz == "" {
		challenge, cerr := s.digest.Challenge(clientIP)
		if cerr != nil {
			return "", cerr
		}
		return challenge, apperr.New(apperr.KindAuth, opServer, "missing Authorization header")
	}
	creds, err := auth.ParseAuthorizationHeader(authz)
	if err != nil {
		return "", err
	}
	if verr := s.digest.Verify(creds, req.Method); verr != nil {
		challenge, cerr := s.digest.Challenge(clientIP)
		if cerr != nil {
			return "", cerr
		}
		return challenge, verr
	}
	return "", nil
}

func (s *Server) faultResponse(err error, correlationID string) *httpserver.ResponseWriter {
	fault := soap.FaultFor(err)
	safeMsg := "request failed"
	if ae, ok := err.(*apperr.Error); ok && ae.Message != "" {
		safeMsg = ae.Message
	}
	rw := httpserver.NewResponseWriter(fault.HTTPStatus)
	rw.SOAPFault(fault.Code, fault.Subcode, safeMsg, correlationID)
	return rw
}

func wrapEnvelope(body []byte) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope"><SOAP-ENV:Body>%s</SOAP-ENV:Body></SOAP-ENV:Envelope>`, body))
}

func queryParam(target, name string) string {
	idx := strings.IndexByte(target, '?')
	if idx < 0 {
		return ""
	}
	query := target[idx+1:]
	for _, pair := range strings.Split(query, "&") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 && kv[0] == name {
			return kv[1]
		}
	}
	return ""
}

func remoteAddrOf(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return ipPort(a.Addr[:], a.Port)
	case *unix.SockaddrInet6:
		return ipPort(a.Addr[:], a.Port)
	default:
		return "unknown"
	}
}

func ipPort(ip []byte, port int) string {
	parts := make([]string, len(ip))
	for i, b := range ip {
		parts[i] = strconv.Itoa(int(b))
	}
	return strings.Join(parts, ".") + ":" + strconv.Itoa(port)
}

// clientIPOf extracts the bare IP from a "host:port" remote address, so
// rate limiting keys on the client's IP rather than its ephemeral port.
func clientIPOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
