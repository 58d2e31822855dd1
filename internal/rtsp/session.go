// Package rtsp is the RTSP Engine of spec.md §4.11: a per-session FSM
// (Init/Ready/Playing/Recording/terminated), SDP synthesis from the Config
// Runtime's profile capabilities, and a reference-counted binding to the
// Stream Router. The source program has no RTSP stack of its own (it
// shells out to mediamtx for media serving), so this package's shape
// follows spec.md §3/§4.11 directly; its crypto-random ID generation and
// mutex-guarded table follow the same conventions used throughout this
// module's other stateful components (internal/connpool.Table,
// internal/streamrouter.Router).
package rtsp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/streamrouter"
)

const opRTSP = "rtsp"

// State is a Session's position in the DESCRIBE/SETUP/PLAY/TEARDOWN FSM.
type State int

const (
	StateInit State = iota
	StateReady
	StatePlaying
	StateRecording
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateRecording:
		return "recording"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// DefaultSessionTimeout is the spec's default RTSP session timeout,
// refreshed on any valid request.
const DefaultSessionTimeout = 60 * time.Second

// Transport describes the negotiated media transport for a session.
type Transport struct {
	Interleaved  bool
	ClientPortLo int
	ClientPortHi int
	ServerPortLo int
	ServerPortHi int
	ChannelLo    int // interleaved mode only
	ChannelHi    int
}

// Session is one RTSP client session, per spec.md §3 "RTSP Session".
type Session struct {
	ID           string
	ProfileToken string
	Transport    Transport
	State        State
	SSRC         uint32
	ExpiresAt    time.Time

	// CorrelationID identifies this session in every log line it
	// produces, generated once at Setup, per
	// SPEC_FULL.md §3 "Extension — Correlation ID".
	CorrelationID uuid.UUID

	streamHandle *streamrouter.Handle
}

// IDGenerator produces session IDs and SSRCs from a cryptographic source,
// per spec.md §4.11 "randomness ... MUST come from a cryptographic source"
// — injectable so tests can use a deterministic generator.
type IDGenerator interface {
	SessionID() (string, error)
	SSRC() (uint32, error)
}

// CryptoIDGenerator is the production IDGenerator, backed by crypto/rand.
type CryptoIDGenerator struct{}

func (CryptoIDGenerator) SessionID() (string, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

func (CryptoIDGenerator) SSRC() (uint32, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 32))
	if err != nil {
		return 0, err
	}
	return uint32(n.Uint64()), nil
}

// Table owns all live Sessions under one mutex and enforces the FSM
// transitions of spec.md §4.11.
type Table struct {
	mu       sync.Mutex
	sessions map[string]*Session
	gen      IDGenerator
	router   *streamrouter.Router
	timeout  time.Duration
}

// NewTable builds a Table. gen defaults to CryptoIDGenerator{}; timeout
// defaults to DefaultSessionTimeout when <= 0.
func NewTable(router *streamrouter.Router, gen IDGenerator, timeout time.Duration) *Table {
	if gen == nil {
		gen = CryptoIDGenerator{}
	}
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &Table{sessions: map[string]*Session{}, gen: gen, router: router, timeout: timeout}
}

// Setup creates a new Session in StateInit->StateReady, acquiring a Stream
// Router binding for profileToken. SETUP is the only operation that
// creates a session, per spec.md §4.11's state diagram.
func (t *Table) Setup(profileToken string, transport Transport, now time.Time) (*Session, error) {
	handle, err := t.router.Acquire(profileToken)
	if err != nil {
		return nil, err
	}

	id, err := t.gen.SessionID()
	if err != nil {
		_ = t.router.Release(handle)
		return nil, apperr.Wrap(apperr.KindInternal, opRTSP, "failed to generate session id", err)
	}
	ssrc, err := t.gen.SSRC()
	if err != nil {
		_ = t.router.Release(handle)
		return nil, apperr.Wrap(apperr.KindInternal, opRTSP, "failed to generate ssrc", err)
	}

	s := &Session{
		ID:            id,
		ProfileToken:  profileToken,
		Transport:     transport,
		State:         StateReady,
		SSRC:          ssrc,
		ExpiresAt:     now.Add(t.timeout),
		CorrelationID: uuid.New(),
		streamHandle:  handle,
	}

	t.mu.Lock()
	t.sessions[id] = s
	t.mu.Unlock()
	return s, nil
}

// Play transitions a session from Ready (or Playing, idempotently) to
// Playing.
func (t *Table) Play(id string, now time.Time) (*Session, error) {
	return t.transition(id, now, func(s *Session) error {
		if s.State != StateReady && s.State != StatePlaying {
			return apperr.New(apperr.KindInvalid, opRTSP, fmt.Sprintf("PLAY not valid from state %s", s.State))
		}
		s.State = StatePlaying
		return nil
	})
}

// Pause transitions Playing/Recording back to Ready.
func (t *Table) Pause(id string, now time.Time) (*Session, error) {
	return t.transition(id, now, func(s *Session) error {
		if s.State != StatePlaying && s.State != StateRecording {
			return apperr.New(apperr.KindInvalid, opRTSP, fmt.Sprintf("PAUSE not valid from state %s", s.State))
		}
		s.State = StateReady
		return nil
	})
}

// Describe refreshes activity without changing state — DESCRIBE is
// permitted in any state per spec.md §4.11.
func (t *Table) Describe(id string, now time.Time) (*Session, error) {
	return t.transition(id, now, func(s *Session) error { return nil })
}

func (t *Table) transition(id string, now time.Time, fn func(*Session) error) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, opRTSP, "no such RTSP session")
	}
	if now.After(s.ExpiresAt) {
		delete(t.sessions, id)
		_ = t.router.Release(s.streamHandle)
		return nil, apperr.New(apperr.KindNotFound, opRTSP, "RTSP session expired")
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	s.ExpiresAt = now.Add(t.timeout)
	return s, nil
}

// Teardown terminates a session and releases its Stream Router binding.
func (t *Table) Teardown(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, opRTSP, "no such RTSP session")
	}
	delete(t.sessions, id)
	s.State = StateTerminated
	return t.router.Release(s.streamHandle)
}

// SweepExpired tears down every session whose ExpiresAt has passed,
// releasing their Stream Router bindings.
func (t *Table) SweepExpired(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []string
	for id, s := range t.sessions {
		if now.After(s.ExpiresAt) {
			expired = append(expired, id)
			delete(t.sessions, id)
			_ = t.router.Release(s.streamHandle)
		}
	}
	return expired
}

// Get returns the session by id, if live.
func (t *Table) Get(id string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
