package rtsp

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onvifcam/onvifd/internal/streamrouter"
)

type fakeEncoder struct{}

func (fakeEncoder) Start(token string) (any, error) { return "handle-" + token, nil }
func (fakeEncoder) Stop(any) error                   { return nil }

type sequentialGen struct{ n uint64 }

func (g *sequentialGen) SessionID() (string, error) {
	g.n++
	return strconv.FormatUint(g.n, 10), nil
}
func (g *sequentialGen) SSRC() (uint32, error) { return uint32(g.n), nil }

func newTestTable() *Table {
	router := streamrouter.New(fakeEncoder{}, func(string) bool { return true })
	return NewTable(router, &sequentialGen{}, time.Second)
}

func TestSetupCreatesReadySession(t *testing.T) {
	tbl := newTestTable()
	s, err := tbl.Setup("main", Transport{}, time.Now())
	require.NoError(t, err)
	require.Equal(t, StateReady, s.State)
	require.Equal(t, 1, tbl.Count())
}

func TestPlayTransitionsFromReady(t *testing.T) {
	tbl := newTestTable()
	s, err := tbl.Setup("main", Transport{}, time.Now())
	require.NoError(t, err)

	s2, err := tbl.Play(s.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, StatePlaying, s2.State)
}

func TestPlayRejectsUnknownSession(t *testing.T) {
	tbl := newTestTable()
	_, err := tbl.Play("nonexistent", time.Now())
	require.Error(t, err)
}

func TestPauseReturnsToReady(t *testing.T) {
	tbl := newTestTable()
	s, _ := tbl.Setup("main", Transport{}, time.Now())
	_, err := tbl.Play(s.ID, time.Now())
	require.NoError(t, err)
	s2, err := tbl.Pause(s.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, StateReady, s2.State)
}

func TestTeardownReleasesStreamBinding(t *testing.T) {
	tbl := newTestTable()
	s, _ := tbl.Setup("main", Transport{}, time.Now())
	require.Equal(t, 1, tbl.router.LiveEncoderCount())
	require.NoError(t, tbl.Teardown(s.ID))
	require.Equal(t, 0, tbl.Count())
	require.Equal(t, 0, tbl.router.LiveEncoderCount())
}

func TestDescribeAllowedInAnyState(t *testing.T) {
	tbl := newTestTable()
	s, _ := tbl.Setup("main", Transport{}, time.Now())
	_, err := tbl.Describe(s.ID, time.Now())
	require.NoError(t, err)

	_, err = tbl.Play(s.ID, time.Now())
	require.NoError(t, err)
	_, err = tbl.Describe(s.ID, time.Now())
	require.NoError(t, err)
}

func TestSweepExpiredTearsDownStaleSessions(t *testing.T) {
	tbl := newTestTable()
	past := time.Now().Add(-time.Hour)
	_, err := tbl.Setup("main", Transport{}, past)
	require.NoError(t, err)

	expired := tbl.SweepExpired(time.Now())
	require.Len(t, expired, 1)
	require.Equal(t, 0, tbl.Count())
}

func TestExpiredSessionIsNotFoundOnAccess(t *testing.T) {
	tbl := newTestTable()
	past := time.Now().Add(-time.Hour)
	s, err := tbl.Setup("main", Transport{}, past)
	require.NoError(t, err)

	_, err = tbl.Play(s.ID, time.Now())
	require.Error(t, err)
}
