package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewMemoryGuardAttachesToSelf(t *testing.T) {
	g, err := NewMemoryGuard(0, 0, nil)
	require.NoError(t, err)
	require.False(t, g.Shedding())
}

func TestMemoryGuardSamplesRSS(t *testing.T) {
	g, err := NewMemoryGuard(0, 0, nil)
	require.NoError(t, err)
	g.sampleOnce()
	require.Greater(t, g.LastRSSBytes(), uint64(0))
}

func TestMemoryGuardShedsAboveLimit(t *testing.T) {
	g, err := NewMemoryGuard(1, 0.9, nil) // 1 byte limit: any real RSS exceeds it
	require.NoError(t, err)
	g.sampleOnce()
	require.True(t, g.Shedding())
}

func TestMemoryGuardRunStopsCleanly(t *testing.T) {
	g, err := NewMemoryGuard(0, 0, nil)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		g.Run(5 * time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	g.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Stop")
	}
}
