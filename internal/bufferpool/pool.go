// Package bufferpool is the Buffer Pool of spec.md §4.1: N pre-allocated,
// fixed-size byte buffers leased to connections for the lifetime of one
// request/response cycle. Bounded memory and zero heap churn on the hot
// path, at the cost of a pool-exhausted error under extreme concurrency —
// the worker pool bound (internal/workerpool) keeps concurrency within what
// the pool can serve. Grounded on the teacher's atomic-counter style
// (internal/camera/bounded_worker_pool.go) generalized from task-slot
// accounting to buffer-slot accounting.
package bufferpool

import (
	"sync"
	"sync/atomic"

	"github.com/onvifcam/onvifd/internal/apperr"
)

const opBufferPool = "bufferpool"

// DefaultCount and DefaultSize are the spec's compile-time pool defaults.
const (
	DefaultCount = 8
	DefaultSize  = 32 * 1024
)

// Buffer is a leased slice with the pool slot it came from. Owner code
// treats Data as a plain []byte; Release returns it to the pool exactly
// once.
type Buffer struct {
	Data []byte
	pool *Pool
	slot int
}

// Release returns the buffer to its pool. Releasing a Buffer not owned by
// pool, or releasing one twice, returns an error instead of panicking or
// corrupting pool state — spec.md §4.1 "double-release of a buffer is
// impossible".
func (b *Buffer) Release() error {
	if b == nil || b.pool == nil {
		return apperr.New(apperr.KindInvalid, opBufferPool, "release of nil or already-released buffer")
	}
	p := b.pool
	b.pool = nil
	return p.release(b.slot)
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Count           int
	InUse           int
	Hits            uint64
	Misses          uint64
	UtilizationPct  float64
}

// Pool is a fixed-size pool of count buffers of size bufSize, protected by
// a single mutex guarding an availability bitmap — per spec.md §4.1's
// chosen implementation strategy.
type Pool struct {
	mu        sync.Mutex
	bufs      [][]byte
	available []bool

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New builds a Pool of count buffers of bufSize bytes, all pre-allocated up
// front. count/bufSize fall back to DefaultCount/DefaultSize when <= 0.
func New(count, bufSize int) *Pool {
	if count <= 0 {
		count = DefaultCount
	}
	if bufSize <= 0 {
		bufSize = DefaultSize
	}
	p := &Pool{
		bufs:      make([][]byte, count),
		available: make([]bool, count),
	}
	for i := range p.bufs {
		p.bufs[i] = make([]byte, bufSize)
		p.available[i] = true
	}
	return p
}

// Acquire returns a free Buffer, or an apperr.KindResource error if the
// pool is exhausted — the caller (worker pool / connection table) is
// responsible for shedding load rather than blocking indefinitely, per
// spec.md §4.1 "predictable worst-case latency".
func (p *Pool) Acquire() (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, free := range p.available {
		if free {
			p.available[i] = false
			p.hits.Add(1)
			return &Buffer{Data: p.bufs[i][:0], pool: p, slot: i}, nil
		}
	}
	p.misses.Add(1)
	return nil, apperr.New(apperr.KindResource, opBufferPool, "buffer pool exhausted")
}

func (p *Pool) release(slot int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot < 0 || slot >= len(p.available) {
		return apperr.New(apperr.KindInvalid, opBufferPool, "release of buffer not owned by this pool")
	}
	if p.available[slot] {
		return apperr.New(apperr.KindInvalid, opBufferPool, "double release of buffer slot")
	}
	p.available[slot] = true
	p.bufs[slot] = p.bufs[slot][:cap(p.bufs[slot])]
	return nil
}

// Stats reports current hit/miss counters and in-use/utilization figures.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	inUse := 0
	for _, free := range p.available {
		if !free {
			inUse++
		}
	}
	count := len(p.available)
	p.mu.Unlock()

	util := 0.0
	if count > 0 {
		util = float64(inUse) / float64(count) * 100
	}
	return Stats{
		Count:          count,
		InUse:          inUse,
		Hits:           p.hits.Load(),
		Misses:         p.misses.Load(),
		UtilizationPct: util,
	}
}
