package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := New(2, 1024)
	b1, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 1, p.Stats().InUse)
	b1.Data = append(b1.Data, 1, 2, 3)
	require.NoError(t, b1.Release())
	require.Equal(t, 0, p.Stats().InUse)
}

func TestPoolExhaustionReturnsResourceError(t *testing.T) {
	p := New(1, 16)
	b1, err := p.Acquire()
	require.NoError(t, err)
	require.NotNil(t, b1)

	_, err = p.Acquire()
	require.Error(t, err)

	stats := p.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
}

func TestDoubleReleaseFails(t *testing.T) {
	p := New(2, 16)
	b, err := p.Acquire()
	require.NoError(t, err)
	require.NoError(t, b.Release())
	require.Error(t, b.Release(), "a second Release call must not silently succeed")
}

func TestReleasedBufferIsReusable(t *testing.T) {
	p := New(1, 16)
	b1, err := p.Acquire()
	require.NoError(t, err)
	require.NoError(t, b1.Release())

	b2, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 16, cap(b2.Data))
	require.Equal(t, 0, len(b2.Data))
}
