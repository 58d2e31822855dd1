package onvifservices

import (
	"fmt"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/config"
)

// SnapshotSource is the HAL collaborator that produces a single JPEG
// frame for the current video stream, per spec.md §6 "GET /snapshot
// returns a JPEG of the current frame (collaborator-provided)".
type SnapshotSource interface {
	CaptureJPEG(profileToken string) ([]byte, error)
}

// SnapshotHandler serves GET /snapshot, the one non-SOAP media endpoint
// named directly in spec.md §6's HTTP surface.
type SnapshotHandler struct {
	runtime *config.Runtime
	source  SnapshotSource
}

// NewSnapshotHandler builds a SnapshotHandler bound to runtime and source.
func NewSnapshotHandler(runtime *config.Runtime, source SnapshotSource) *SnapshotHandler {
	return &SnapshotHandler{runtime: runtime, source: source}
}

// Serve validates profileToken against the live Snapshot and returns the
// JPEG bytes the source collaborator captures for it.
func (h *SnapshotHandler) Serve(profileToken string) ([]byte, error) {
	snap := h.runtime.Snapshot()
	if profileToken == "" {
		profileToken = snap.Profiles[0].Token
	}
	if !profileExists(snap, profileToken) {
		return nil, apperr.New(apperr.KindNotFound, opServices, fmt.Sprintf("no such media profile %q", profileToken))
	}
	jpeg, err := h.source.CaptureJPEG(profileToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindResource, opServices, "snapshot capture failed", err)
	}
	return jpeg, nil
}

// HealthHandler serves GET /healthz, per spec.md §6: "200 OK with a
// one-line status=<ok|degraded>". Degraded is whatever the injected
// degraded func reports; cmd/onvifd passes the Memory Budget Guard's
// Shedding. A degraded Config Storage load is only logged, not reported
// here.
type HealthHandler struct {
	degraded func() bool
}

// NewHealthHandler builds a HealthHandler. degraded is polled on every
// request to decide ok vs. degraded — never cached, since the daemon's
// health can change between requests.
func NewHealthHandler(degraded func() bool) *HealthHandler {
	return &HealthHandler{degraded: degraded}
}

// Serve renders the one-line health status body.
func (h *HealthHandler) Serve() string {
	if h.degraded != nil && h.degraded() {
		return "status=degraded\n"
	}
	return "status=ok\n"
}
