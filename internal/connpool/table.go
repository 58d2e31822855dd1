// Package connpool is the Connection Table of spec.md §4.2: per-connection
// FSM state, a process-wide doubly-linked list under one mutex, and a
// timeout sweeper. Grounded on the teacher's patterns for
// mutex-guarded shared state (internal/camera/bounded_worker_pool.go's
// atomic counters) and on the timeout-bounded shutdown helper
// (StopWithTimeout) in internal/common/stoppable.go, generalized to connection bookkeeping the
// teacher never had: the source program was a camera pipeline, not an HTTP
// server, so the FSM and sweep behavior below follow spec.md §3/§4.2
// directly rather than an existing teacher file.
package connpool

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/bufferpool"
)

const opConnPool = "connpool"

// State is a Connection's position in the request/response FSM, per
// spec.md §3 "Connection".
type State int

const (
	StateReadingHeaders State = iota
	StateReadingBody
	StateProcessing
	StateWriting
	StateKeepAlive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateReadingHeaders:
		return "reading_headers"
	case StateReadingBody:
		return "reading_body"
	case StateProcessing:
		return "processing"
	case StateWriting:
		return "writing"
	case StateKeepAlive:
		return "keep_alive"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Default timeouts, per spec.md §3 "Timeouts".
const (
	ActiveTimeout   = 30 * time.Second
	KeepAliveIdle   = 5 * time.Second
	SweepInterval   = 5 * time.Second
)

// Connection is one in-flight client connection: socket handle, FSM state,
// leased request buffer, and parsed request metadata. Connections form a
// process-wide doubly-linked list so the sweeper can walk all of them
// without a separate index.
type Connection struct {
	FD     int
	State  State
	Buffer *bufferpool.Buffer

	// CorrelationID identifies this connection in every log line and
	// SOAP fault response it produces, generated once at Create and
	// never reused, per SPEC_FULL.md §3 "Extension — Correlation ID".
	CorrelationID uuid.UUID

	BodyCursor      int
	ContentLength   int64
	Method          string
	Path            string
	ProtocolVersion string
	ClientAddr      string

	LastActivity   time.Time
	KeepAliveCount int

	// StreamBindingRelease, if set, is invoked by the sweeper when this
	// connection times out, to drop any refcount it holds on a Stream
	// Router binding (spec.md §4.2 "drop refcount on any held stream
	// binding").
	StreamBindingRelease func()

	prev, next *Connection
	inTable    bool
}

// Table is the process-wide connection list, protected by one mutex.
type Table struct {
	mu   sync.Mutex
	head *Connection
	tail *Connection
	size int
}

// NewTable builds an empty Table.
func NewTable() *Table { return &Table{} }

// Create initialises a Connection in StateReadingHeaders with the given fd
// and leased buffer, timestamped now. It is not yet part of the table;
// call Insert to register it.
func Create(fd int, buf *bufferpool.Buffer, clientAddr string, now time.Time) *Connection {
	return &Connection{
		FD:            fd,
		State:         StateReadingHeaders,
		Buffer:        buf,
		ClientAddr:    clientAddr,
		LastActivity:  now,
		CorrelationID: uuid.New(),
	}
}

// Insert appends c to the table's linked list.
func (t *Table) Insert(c *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertLocked(c)
}

func (t *Table) insertLocked(c *Connection) {
	if c.inTable {
		return
	}
	c.prev = t.tail
	c.next = nil
	if t.tail != nil {
		t.tail.next = c
	} else {
		t.head = c
	}
	t.tail = c
	c.inTable = true
	t.size++
}

// Remove unlinks c from the table. It is a no-op if c is not currently
// registered — spec.md §4.2 invariant "a connection is in the linked list
// iff it is registered with the reactor".
func (t *Table) Remove(c *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(c)
}

func (t *Table) removeLocked(c *Connection) {
	if !c.inTable {
		return
	}
	if c.prev != nil {
		c.prev.next = c.next
	} else {
		t.head = c.next
	}
	if c.next != nil {
		c.next.prev = c.prev
	} else {
		t.tail = c.prev
	}
	c.prev, c.next = nil, nil
	c.inTable = false
	t.size--
}

// Lock/Unlock expose the table's mutex to callers (e.g. the reactor) that
// need to iterate ListHead themselves across multiple operations, per
// spec.md §4.2's contract of lock()/unlock() alongside list_head().
func (t *Table) Lock()   { t.mu.Lock() }
func (t *Table) Unlock() { t.mu.Unlock() }

// ListHead returns the first Connection in the list, or nil if empty.
// Callers iterate via Connection.Next while holding the Table's lock.
func (t *Table) ListHead() *Connection { return t.head }

// Next returns the next Connection in table order.
func (c *Connection) Next() *Connection { return c.next }

// Size returns the number of registered connections.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

func timeoutFor(state State) time.Duration {
	if state == StateKeepAlive {
		return KeepAliveIdle
	}
	return ActiveTimeout
}

// destroy releases c's buffer (if held) and drops any stream binding
// refcount. Buffer release errors are swallowed here: destroy runs on the
// timeout path where there is no caller to propagate the error to, and a
// double-release can only happen from a prior programming error elsewhere,
// not from this call itself.
func destroy(c *Connection) {
	if c.Buffer != nil {
		_ = c.Buffer.Release()
		c.Buffer = nil
	}
	if c.StreamBindingRelease != nil {
		c.StreamBindingRelease()
		c.StreamBindingRelease = nil
	}
}

// SweepTimeouts walks the table once, removing and destroying every
// connection whose state-specific timeout has elapsed relative to now.
// Returns the fds that were closed, so the caller (reactor) can also
// deregister them from epoll and close the socket.
func (t *Table) SweepTimeouts(now time.Time) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []*Connection
	for c := t.head; c != nil; {
		next := c.next
		if now.Sub(c.LastActivity) > timeoutFor(c.State) {
			expired = append(expired, c)
		}
		c = next
	}

	fds := make([]int, 0, len(expired))
	for _, c := range expired {
		t.removeLocked(c)
		c.State = StateClosing
		destroy(c)
		fds = append(fds, c.FD)
	}
	return fds
}

// Touch updates c's LastActivity to now — called on every successful I/O
// event for the connection.
func (c *Connection) Touch(now time.Time) { c.LastActivity = now }

// ErrBufferAlreadyReleased is returned by operations that expect a
// connection to still hold its leased buffer.
var ErrBufferAlreadyReleased = apperr.New(apperr.KindInvalid, opConnPool, "connection has no leased buffer")
