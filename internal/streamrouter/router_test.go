package streamrouter

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onvifcam/onvifd/internal/apperr"
)

type fakeEncoder struct {
	starts atomic.Int64
	stops  atomic.Int64
	busy   bool
}

func (f *fakeEncoder) Start(token string) (any, error) {
	if f.busy {
		return nil, fmt.Errorf("busy")
	}
	f.starts.Add(1)
	return "handle-" + token, nil
}

func (f *fakeEncoder) Stop(handle any) error {
	f.stops.Add(1)
	return nil
}

func TestAcquireStartsEncoderOnceThenRefcounts(t *testing.T) {
	enc := &fakeEncoder{}
	r := New(enc, func(string) bool { return true })

	h1, err := r.Acquire("main")
	require.NoError(t, err)
	h2, err := r.Acquire("main")
	require.NoError(t, err)

	require.Equal(t, int64(1), enc.starts.Load())
	require.Equal(t, 2, r.RefCount("main"))
	require.Equal(t, 1, r.LiveEncoderCount())

	require.NoError(t, r.Release(h1))
	require.Equal(t, int64(0), enc.stops.Load())
	require.NoError(t, r.Release(h2))
	require.Equal(t, int64(1), enc.stops.Load())
	require.Equal(t, 0, r.LiveEncoderCount())
}

func TestAcquireUnknownProfileReturnsNotFound(t *testing.T) {
	enc := &fakeEncoder{}
	r := New(enc, func(string) bool { return false })
	_, err := r.Acquire("bogus")
	require.Error(t, err)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAcquireBusyEncoderReturnsResourceError(t *testing.T) {
	enc := &fakeEncoder{busy: true}
	r := New(enc, func(string) bool { return true })
	_, err := r.Acquire("main")
	require.Error(t, err)
	require.Equal(t, apperr.KindResource, apperr.KindOf(err))
}

func TestReleaseUnknownHandleErrors(t *testing.T) {
	r := New(&fakeEncoder{}, func(string) bool { return true })
	err := r.Release(&Handle{token: "never-acquired"})
	require.Error(t, err)
}

func TestDistinctProfilesGetIndependentEncoders(t *testing.T) {
	enc := &fakeEncoder{}
	r := New(enc, func(string) bool { return true })
	_, err := r.Acquire("main")
	require.NoError(t, err)
	_, err = r.Acquire("sub")
	require.NoError(t, err)
	require.Equal(t, int64(2), enc.starts.Load())
	require.Equal(t, 2, r.LiveEncoderCount())
}
