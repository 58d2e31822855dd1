// Package hal declares the Hardware Abstraction Layer collaborators named
// in spec.md §6 as explicitly out of scope for concrete drivers: video
// capture, encoder, IR LED, and PTZ motor control, plus the WS-Discovery
// UDP responder. Only interfaces and deterministic in-memory fakes live
// here — real drivers are a separate, hardware-specific repository per
// spec.md §1 "Deliberately out of scope".
package hal

import "context"

// VideoCapture is the camera sensor collaborator: starts/stops raw frame
// capture for a given resolution/framerate.
type VideoCapture interface {
	Start(ctx context.Context, width, height, frameRate int32) error
	Stop() error
}

// EncoderHandle is an opaque reference to a running encoder instance,
// returned by Encoder.Start and consumed only by the same Encoder's Stop.
// It is an alias for any (not a distinct named type) so that an Encoder
// implementation satisfies internal/streamrouter.Encoder's any-typed
// Start/Stop signatures without an import-time dependency between the two
// packages.
type EncoderHandle = any

// Encoder starts/stops a video encoder instance for a profile token. It
// satisfies internal/streamrouter.Encoder.
type Encoder interface {
	Start(profileToken string) (EncoderHandle, error)
	Stop(handle EncoderHandle) error
}

// IRLED is the auto day/night infrared illuminator collaborator.
type IRLED interface {
	SetEnabled(enabled bool) error
}

// PTZMotor is the pan/tilt/zoom motor controller collaborator.
type PTZMotor interface {
	MoveTo(pan, tilt, zoom float64) error
	Position() (pan, tilt, zoom float64, err error)
}

// DiscoveryResponder is the WS-Discovery UDP collaborator: it listens on
// the multicast discovery address and answers Probe messages with the
// device's XAddrs, per spec.md §6 "WS-Discovery UDP".
type DiscoveryResponder interface {
	Start(ctx context.Context) error
	Stop() error
}
