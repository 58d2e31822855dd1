package hal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// FakeEncoder is a deterministic in-memory Encoder for tests and for
// running the daemon without real video hardware attached.
type FakeEncoder struct {
	mu      sync.Mutex
	running map[string]bool
	nextID  atomic.Int64
}

// NewFakeEncoder builds an empty FakeEncoder.
func NewFakeEncoder() *FakeEncoder {
	return &FakeEncoder{running: map[string]bool{}}
}

type fakeEncoderHandle struct {
	id           int64
	profileToken string
}

func (f *FakeEncoder) Start(profileToken string) (EncoderHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running[profileToken] {
		return nil, fmt.Errorf("encoder for %q already running", profileToken)
	}
	f.running[profileToken] = true
	return &fakeEncoderHandle{id: f.nextID.Add(1), profileToken: profileToken}, nil
}

func (f *FakeEncoder) Stop(handle EncoderHandle) error {
	h, ok := handle.(*fakeEncoderHandle)
	if !ok {
		return fmt.Errorf("handle not owned by FakeEncoder")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, h.profileToken)
	return nil
}

// FakeIRLED is a deterministic in-memory IRLED.
type FakeIRLED struct {
	mu      sync.Mutex
	enabled bool
}

func (f *FakeIRLED) SetEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
	return nil
}

func (f *FakeIRLED) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// FakePTZMotor is a deterministic in-memory PTZMotor.
type FakePTZMotor struct {
	mu                 sync.Mutex
	pan, tilt, zoom    float64
}

func (f *FakePTZMotor) MoveTo(pan, tilt, zoom float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pan, f.tilt, f.zoom = pan, tilt, zoom
	return nil
}

func (f *FakePTZMotor) Position() (pan, tilt, zoom float64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pan, f.tilt, f.zoom, nil
}

// FakeVideoCapture is a deterministic in-memory VideoCapture.
type FakeVideoCapture struct {
	mu      sync.Mutex
	running bool
}

func (f *FakeVideoCapture) Start(ctx context.Context, width, height, frameRate int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *FakeVideoCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

// FakeDiscoveryResponder is a no-op DiscoveryResponder for tests and for
// running with network discovery disabled.
type FakeDiscoveryResponder struct {
	running atomic.Bool
}

func (f *FakeDiscoveryResponder) Start(ctx context.Context) error {
	f.running.Store(true)
	return nil
}

func (f *FakeDiscoveryResponder) Stop() error {
	f.running.Store(false)
	return nil
}
