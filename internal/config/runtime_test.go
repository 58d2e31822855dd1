package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onvifcam/onvifd/internal/apperr"
)

func TestNewRuntimeAppliesDefaults(t *testing.T) {
	r := NewRuntime(nil, nil)
	host, err := r.GetString("network", "host")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", host)
	require.Equal(t, uint32(0), r.Generation())
}

func TestSetStringValidatesAndInstalls(t *testing.T) {
	r := NewRuntime(nil, nil)
	require.NoError(t, r.SetString("network", "host", "192.168.1.10"))
	host, err := r.GetString("network", "host")
	require.NoError(t, err)
	require.Equal(t, "192.168.1.10", host)
	require.Equal(t, uint32(1), r.Generation())
}

func TestSetIntRejectsOutOfRange(t *testing.T) {
	r := NewRuntime(nil, nil)
	before := r.Generation()
	err := r.SetInt("network", "http_port", 99999)
	require.Error(t, err)
	require.Equal(t, before, r.Generation(), "a rejected mutation must not bump the generation")
}

func TestSetUnknownKeyReturnsNotFound(t *testing.T) {
	r := NewRuntime(nil, nil)
	err := r.SetString("bogus", "nope", "x")
	require.Error(t, err)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestApplyDefaultsIsIdempotent(t *testing.T) {
	r := NewRuntime(nil, nil)
	require.NoError(t, r.SetString("onvif", "model", "Custom"))
	r.ApplyDefaults()
	gen1 := r.Generation()
	snap1 := r.Snapshot()
	r.ApplyDefaults()
	snap2 := r.Snapshot()
	require.Equal(t, snap1.Onvif, snap2.Onvif)
	require.Equal(t, gen1+1, r.Generation())
}

func TestApplyDefaultsPreservesUsers(t *testing.T) {
	r := NewRuntime(nil, nil)
	require.NoError(t, r.RegisterUser("admin", "hunter2", "admin"))
	r.ApplyDefaults()
	require.True(t, r.UserExists("admin"))
}

func TestRegisterVerifyRemoveUser(t *testing.T) {
	r := NewRuntime(nil, nil)
	require.NoError(t, r.RegisterUser("alice", "s3cret!", "operator"))

	level, err := r.VerifyUser("alice", "s3cret!")
	require.NoError(t, err)
	require.Equal(t, "operator", level)

	_, err = r.VerifyUser("alice", "wrong")
	require.Error(t, err)

	ha1, ok := r.LookupHA1("alice")
	require.True(t, ok)
	require.NotEmpty(t, ha1)

	require.NoError(t, r.RemoveUser("alice"))
	require.False(t, r.UserExists("alice"))
	require.Error(t, r.RemoveUser("alice"))
}

func TestRegisterUserRejectsInvalidLevel(t *testing.T) {
	r := NewRuntime(nil, nil)
	err := r.RegisterUser("bob", "whatever1", "superuser")
	require.Error(t, err)
}

func TestOnUpdateFiresOnMutation(t *testing.T) {
	r := NewRuntime(nil, nil)
	var seen int
	r.OnUpdate(func(s *Snapshot) { seen++ })
	require.NoError(t, r.SetString("network", "host", "10.0.0.1"))
	require.Equal(t, 1, seen)
}
