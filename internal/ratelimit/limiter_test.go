package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowAdmitsUpToBurstThenDenies(t *testing.T) {
	l := New(1, 2)
	require.True(t, l.Allow("1.2.3.4"))
	require.True(t, l.Allow("1.2.3.4"))
	require.False(t, l.Allow("1.2.3.4"), "burst exhausted, next request should be denied")
}

func TestAllowTracksKeysIndependently(t *testing.T) {
	l := New(1, 1)
	require.True(t, l.Allow("client-a"))
	require.True(t, l.Allow("client-b"), "a distinct key must have its own bucket")
	require.False(t, l.Allow("client-a"))
}

func TestSweepRemovesOnlyStaleBuckets(t *testing.T) {
	l := New(1, 1)
	l.Allow("stale")
	l.buckets["stale"].lastAccess = time.Now().Add(-staleAfter - time.Second)
	l.Allow("fresh")

	l.Sweep(time.Now())

	require.Equal(t, 1, l.Count())
	_, freshStillTracked := l.buckets["fresh"]
	require.True(t, freshStillTracked)
}
