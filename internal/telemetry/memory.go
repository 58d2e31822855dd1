// Package telemetry is spec.md §4.12/§6's Telemetry component: structured
// logging is handled by internal/logging and HTTP metrics by
// internal/httpserver.Metrics; this package holds the memory budget guard,
// which sets a shedding flag when the process's RSS crosses a configured
// ceiling. cmd/onvifd reports the flag on /healthz; the HTTP engine does
// not read it, so requests are not rejected with 503 on its account.
// Grounded on the teacher's
// gopsutil-based resource sampling in
// internal/mediamtx/system_metrics_manager.go, extended from the cpu/disk
// subpackages it imports to gopsutil/v3/process for per-process RSS, since
// the teacher's daemon never needed self-process memory (it shelled out to
// ffmpeg/mediamtx subprocesses, not in-process encoders).
package telemetry

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/logging"
)

const opTelemetry = "telemetry"

// MemoryGuard samples the current process's RSS on a timer and flips
// Shedding() once it crosses limitBytes, recovering once it drops back
// below a hysteresis margin.
type MemoryGuard struct {
	limitBytes   uint64
	hysteresis   float64 // fraction of limitBytes to drop below before recovering, e.g. 0.9
	proc         *process.Process
	logger       *logging.Logger

	shedding atomic.Bool
	lastRSS  atomic.Uint64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMemoryGuard builds a guard for the current process. hysteresisFrac
// defaults to 0.9 when <= 0 or >= 1.
func NewMemoryGuard(limitBytes uint64, hysteresisFrac float64, logger *logging.Logger) (*MemoryGuard, error) {
	if logger == nil {
		logger = logging.GetLogger("telemetry")
	}
	if hysteresisFrac <= 0 || hysteresisFrac >= 1 {
		hysteresisFrac = 0.9
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, opTelemetry, "failed to attach to own process for RSS sampling", err)
	}
	return &MemoryGuard{
		limitBytes: limitBytes,
		hysteresis: hysteresisFrac,
		proc:       proc,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Shedding reports whether the guard is in its over-budget state: RSS has
// reached limitBytes and has not yet dropped below the recovery threshold.
func (g *MemoryGuard) Shedding() bool { return g.shedding.Load() }

// LastRSSBytes returns the most recently sampled RSS.
func (g *MemoryGuard) LastRSSBytes() uint64 { return g.lastRSS.Load() }

// Run samples RSS every interval until Stop is called.
func (g *MemoryGuard) Run(interval time.Duration) {
	defer close(g.doneCh)
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.sampleOnce()
		}
	}
}

func (g *MemoryGuard) sampleOnce() {
	info, err := g.proc.MemoryInfo()
	if err != nil {
		g.logger.WithError(err).Warn("failed to sample process RSS")
		return
	}
	g.lastRSS.Store(info.RSS)

	if g.limitBytes == 0 {
		return
	}
	if info.RSS >= g.limitBytes {
		if !g.shedding.Swap(true) {
			g.logger.WithFields(logging.Fields{"rss_bytes": info.RSS, "limit_bytes": g.limitBytes}).Warn("memory budget exceeded, shedding new requests")
		}
		return
	}
	recoveryThreshold := uint64(float64(g.limitBytes) * g.hysteresis)
	if info.RSS < recoveryThreshold {
		if g.shedding.Swap(false) {
			g.logger.WithFields(logging.Fields{"rss_bytes": info.RSS}).Info("memory usage recovered, no longer shedding")
		}
	}
}

// Stop halts the sampling loop.
func (g *MemoryGuard) Stop() {
	close(g.stopCh)
	<-g.doneCh
}
