package httpserver

import "sync/atomic"

// Metrics is the lock-free request counter set of spec.md §4.5: every
// completed request records its latency/bytes/status-class without ever
// taking a lock on the hot path.
type Metrics struct {
	total              atomic.Uint64
	success            atomic.Uint64
	clientErrors       atomic.Uint64
	serverErrors       atomic.Uint64
	minLatencyMicros   atomic.Uint64
	maxLatencyMicros   atomic.Uint64
	sumLatencyMicros   atomic.Uint64
	bytes              atomic.Uint64
	currentConnections atomic.Int64
}

// MetricsSnapshot is a point-in-time read of Metrics, safe to log or
// serve from a status endpoint.
type MetricsSnapshot struct {
	Total              uint64
	Success            uint64
	ClientErrors       uint64
	ServerErrors       uint64
	MinLatencyMicros   uint64
	MaxLatencyMicros   uint64
	SumLatencyMicros   uint64
	Bytes              uint64
	CurrentConnections int64
}

// Record registers one completed request.
func (m *Metrics) Record(status int, latencyMicros uint64, responseBytes uint64) {
	m.total.Add(1)
	switch {
	case status >= 200 && status < 400:
		m.success.Add(1)
	case status >= 400 && status < 500:
		m.clientErrors.Add(1)
	default:
		m.serverErrors.Add(1)
	}
	m.bytes.Add(responseBytes)
	m.sumLatencyMicros.Add(latencyMicros)
	for {
		cur := m.minLatencyMicros.Load()
		if cur != 0 && cur <= latencyMicros {
			break
		}
		if m.minLatencyMicros.CompareAndSwap(cur, latencyMicros) {
			break
		}
	}
	for {
		cur := m.maxLatencyMicros.Load()
		if cur >= latencyMicros {
			break
		}
		if m.maxLatencyMicros.CompareAndSwap(cur, latencyMicros) {
			break
		}
	}
}

// ConnectionOpened/ConnectionClosed track the current-connections gauge.
func (m *Metrics) ConnectionOpened() { m.currentConnections.Add(1) }
func (m *Metrics) ConnectionClosed() { m.currentConnections.Add(-1) }

// Snapshot reads all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Total:              m.total.Load(),
		Success:            m.success.Load(),
		ClientErrors:       m.clientErrors.Load(),
		ServerErrors:       m.serverErrors.Load(),
		MinLatencyMicros:   m.minLatencyMicros.Load(),
		MaxLatencyMicros:   m.maxLatencyMicros.Load(),
		SumLatencyMicros:   m.sumLatencyMicros.Load(),
		Bytes:              m.bytes.Load(),
		CurrentConnections: m.currentConnections.Load(),
	}
}
