// Package streamrouter is the Stream Router of spec.md §4.10: a
// ref-counted map from profile token to encoder handle, guaranteeing one
// encoder instance per profile shared across concurrent RTSP sessions.
// Grounded on the teacher's refcount-free but comparably-shaped
// acquire/release resource lifecycle in
// internal/camera/bounded_worker_pool.go (semaphore-style slot accounting),
// generalized here to per-key reference counting instead of a fixed pool
// size.
package streamrouter

import (
	"fmt"
	"sync"

	"github.com/onvifcam/onvifd/internal/apperr"
)

const opStreamRouter = "streamrouter"

// Encoder is the HAL collaborator this router starts/stops — see
// internal/hal.Encoder. Declared here as a narrow interface so this
// package has no import-time dependency on the HAL package's full surface.
type Encoder interface {
	Start(profileToken string) (handle any, err error)
	Stop(handle any) error
}

type binding struct {
	handle   any
	refcount int
}

// Router owns the profile_token -> {encoder_handle, refcount} map.
type Router struct {
	mu       sync.Mutex
	bindings map[string]*binding
	encoder  Encoder

	// knownProfiles restricts Acquire to configured profile tokens;
	// injected rather than read live from the config runtime so this
	// package stays decoupled from internal/config.
	knownProfiles func(token string) bool
}

// New builds a Router bound to encoder, with knownProfiles used to
// distinguish "unknown profile" (NotFound) from "encoder busy"
// (Unavailable) failures.
func New(encoder Encoder, knownProfiles func(token string) bool) *Router {
	return &Router{bindings: map[string]*binding{}, encoder: encoder, knownProfiles: knownProfiles}
}

// Handle is an opaque reference-counted lease on a profile's encoder.
type Handle struct {
	token string
}

// Acquire returns a Handle for profileToken, starting the encoder on the
// first acquire and incrementing the refcount on subsequent ones.
func (r *Router) Acquire(profileToken string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bindings[profileToken]; ok {
		b.refcount++
		return &Handle{token: profileToken}, nil
	}

	if r.knownProfiles != nil && !r.knownProfiles(profileToken) {
		return nil, apperr.New(apperr.KindNotFound, opStreamRouter, fmt.Sprintf("unknown profile token %q", profileToken))
	}

	handle, err := r.encoder.Start(profileToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindResource, opStreamRouter, "encoder unavailable", err)
	}
	r.bindings[profileToken] = &binding{handle: handle, refcount: 1}
	return &Handle{token: profileToken}, nil
}

// Release decrements the refcount for h's profile token; on reaching zero
// the encoder is stopped and the binding removed.
func (r *Router) Release(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[h.token]
	if !ok {
		return apperr.New(apperr.KindInvalid, opStreamRouter, "release of unknown or already-released handle")
	}
	b.refcount--
	if b.refcount > 0 {
		return nil
	}
	delete(r.bindings, h.token)
	if err := r.encoder.Stop(b.handle); err != nil {
		return apperr.Wrap(apperr.KindInternal, opStreamRouter, "failed to stop encoder", err)
	}
	return nil
}

// LiveEncoderCount returns the number of distinct profile tokens with
// refcount > 0 — spec.md §4.10's invariant, exposed for tests/telemetry.
func (r *Router) LiveEncoderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}

// RefCount returns the current refcount for token, or 0 if unbound.
func (r *Router) RefCount(token string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bindings[token]; ok {
		return b.refcount
	}
	return 0
}
