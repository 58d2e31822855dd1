package rtsp

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/config"
	"github.com/onvifcam/onvifd/internal/logging"
)

// Engine owns the RTSP TCP listener and dispatches DESCRIBE/SETUP/
// PLAY/PAUSE/TEARDOWN requests to a Table, per spec.md §4.11. Per
// spec.md §5's scheduling model ("one accept thread plus one thread per
// active session"), Engine runs one accept goroutine and one
// request-serving goroutine per connection — there is no epoll reactor
// on this path, since RTSP's request volume per session is low (one
// control message per playback transition) unlike the HTTP/SOAP path's
// per-request overhead that justifies the Epoll Reactor.
type Engine struct {
	listener net.Listener
	table    *Table
	runtime  *config.Runtime
	logger   *logging.Logger
	running  atomic.Bool

	// portPairs counts the server port pairs handed out across all
	// connections.
	portPairs atomic.Int64
}

// NewEngine builds an Engine bound to listener, table, and runtime.
func NewEngine(listener net.Listener, table *Table, runtime *config.Runtime, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.GetLogger("rtsp")
	}
	return &Engine{listener: listener, table: table, runtime: runtime, logger: logger}
}

// Serve accepts connections until the listener is closed or Stop is
// called.
func (e *Engine) Serve() {
	e.running.Store(true)
	for e.running.Load() {
		conn, err := e.listener.Accept()
		if err != nil {
			if !e.running.Load() {
				return
			}
			e.logger.WithError(err).Error("rtsp accept failed")
			continue
		}
		go e.serveConn(conn)
	}
}

// Stop closes the listener, unblocking Serve's Accept call.
func (e *Engine) Stop() error {
	e.running.Store(false)
	return e.listener.Close()
}

func (e *Engine) serveConn(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	ordinal := 0

	for {
		_ = conn.SetReadDeadline(time.Now().Add(DefaultSessionTimeout))
		req, err := ReadRequest(br)
		if err != nil {
			return
		}

		var sb strings.Builder
		e.dispatch(req, conn, ordinal, &sb)
		if _, err := conn.Write([]byte(sb.String())); err != nil {
			return
		}
		if req.Method == "TEARDOWN" {
			return
		}
		if req.Method == "SETUP" {
			ordinal++
		}
	}
}

func (e *Engine) dispatch(req *Request, conn net.Conn, ordinal int, sb *strings.Builder) {
	profileToken := profileTokenFromURI(req.URI)

	switch req.Method {
	case "OPTIONS":
		WriteResponse(sb, 200, StatusText(200), req.CSeq, map[string]string{
			"Public": "DESCRIBE, SETUP, PLAY, PAUSE, TEARDOWN, OPTIONS",
		}, "")

	case "DESCRIBE":
		snap := e.runtime.Snapshot()
		caps, ok := CapabilitiesForProfile(snap, profileToken)
		if !ok {
			WriteResponse(sb, 404, StatusText(404), req.CSeq, nil, "")
			return
		}
		serverHost := hostOf(conn.LocalAddr())
		sdp := SynthesizeSDP(caps, serverHost)
		WriteResponse(sb, 200, StatusText(200), req.CSeq, map[string]string{
			"Content-Type": "application/sdp",
		}, sdp)

	case "SETUP":
		transport, err := ParseTransportHeader(req.Header("Transport"))
		if err != nil {
			WriteResponse(sb, 461, StatusText(461), req.CSeq, nil, "")
			return
		}
		if transport.Interleaved {
			lo, hi := AllocateChannels(ordinal)
			transport.ChannelLo, transport.ChannelHi = lo, hi
		} else {
			lo, hi := AllocateServerPorts(30000, int(e.portPairs.Add(1)-1))
			transport.ServerPortLo, transport.ServerPortHi = lo, hi
		}

		sess, err := e.table.Setup(profileToken, transport, time.Now())
		if err != nil {
			writeEngineError(sb, req.CSeq, err)
			return
		}
		e.logger.WithCorrelationID(sess.CorrelationID.String()).Info("rtsp session established")
		WriteResponse(sb, 200, StatusText(200), req.CSeq, map[string]string{
			"Session":   sess.ID,
			"Transport": renderTransport(transport),
		}, "")

	case "PLAY":
		id := req.Header("Session")
		sess, err := e.table.Play(id, time.Now())
		if err != nil {
			writeEngineError(sb, req.CSeq, err)
			return
		}
		e.logger.WithCorrelationID(sess.CorrelationID.String()).Info("rtsp session playing")
		WriteResponse(sb, 200, StatusText(200), req.CSeq, map[string]string{"Session": sess.ID}, "")

	case "PAUSE":
		id := req.Header("Session")
		sess, err := e.table.Pause(id, time.Now())
		if err != nil {
			writeEngineError(sb, req.CSeq, err)
			return
		}
		e.logger.WithCorrelationID(sess.CorrelationID.String()).Info("rtsp session paused")
		WriteResponse(sb, 200, StatusText(200), req.CSeq, map[string]string{"Session": sess.ID}, "")

	case "TEARDOWN":
		id := req.Header("Session")
		if sess, ok := e.table.Get(id); ok {
			e.logger.WithCorrelationID(sess.CorrelationID.String()).Info("rtsp session torn down")
		}
		if err := e.table.Teardown(id); err != nil {
			writeEngineError(sb, req.CSeq, err)
			return
		}
		WriteResponse(sb, 200, StatusText(200), req.CSeq, nil, "")

	default:
		WriteResponse(sb, 400, StatusText(400), req.CSeq, nil, "")
	}
}

func writeEngineError(sb *strings.Builder, cseq string, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		WriteResponse(sb, 454, StatusText(454), cseq, nil, "")
	case apperr.KindInvalid:
		WriteResponse(sb, 455, StatusText(455), cseq, nil, "")
	case apperr.KindResource:
		WriteResponse(sb, 500, StatusText(500), cseq, nil, "")
	default:
		WriteResponse(sb, 500, StatusText(500), cseq, nil, "")
	}
}

// profileTokenFromURI extracts the trailing path segment of an RTSP
// request URI (rtsp://host:port/MainProfile -> "MainProfile").
func profileTokenFromURI(uri string) string {
	segs := strings.Split(strings.TrimRight(uri, "/"), "/")
	return segs[len(segs)-1]
}

func renderTransport(t Transport) string {
	if t.Interleaved {
		return fmt.Sprintf("RTP/AVP/TCP;unicast;interleaved=%d-%d", t.ChannelLo, t.ChannelHi)
	}
	return fmt.Sprintf("RTP/AVP;unicast;client_port=%d-%d;server_port=%d-%d",
		t.ClientPortLo, t.ClientPortHi, t.ServerPortLo, t.ServerPortHi)
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
