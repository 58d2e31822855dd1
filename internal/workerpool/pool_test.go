package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitRunsTaskAndBoundsConcurrency(t *testing.T) {
	p := New(2, time.Second, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	var active, maxSeen atomic.Int64
	release := make(chan struct{})
	for i := 0; i < 2; i++ {
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
			n := active.Add(1)
			for {
				cur := maxSeen.Load()
				if n <= cur || maxSeen.CompareAndSwap(cur, n) {
					break
				}
			}
			<-release
			active.Add(-1)
		}))
	}

	// A third submit must block until a slot frees; use a short-timeout
	// context to observe that it does not complete instantly.
	blockedCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Submit(blockedCtx, func(context.Context) {})
	require.Error(t, err, "third submit should have blocked against the 2-worker bound")

	close(release)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int64(2), maxSeen.Load())
}

func TestSubmitBeforeStartFails(t *testing.T) {
	p := New(1, time.Second, nil)
	err := p.Submit(context.Background(), func(context.Context) {})
	require.Error(t, err)
}

func TestTaskTimeoutIsCounted(t *testing.T) {
	p := New(1, 20*time.Millisecond, nil)
	require.NoError(t, p.Start(context.Background()))

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	}))
	<-done
	require.NoError(t, p.Stop(context.Background()))
	require.Equal(t, int64(1), p.Stats().TimeoutTasks)
}

func TestPanicInTaskIsRecoveredAndCounted(t *testing.T) {
	p := New(1, time.Second, nil)
	require.NoError(t, p.Start(context.Background()))

	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		panic("boom")
	}))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Stop(context.Background()))
	require.Equal(t, int64(1), p.Stats().FailedTasks)
}

func TestStopIsIdempotent(t *testing.T) {
	p := New(1, time.Second, nil)
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop(context.Background()))
	require.NoError(t, p.Stop(context.Background()))
}
