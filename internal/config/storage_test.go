package config

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "onvifd.ini")

	r1 := NewRuntime(nil, nil)
	st1 := NewStorage(path, r1, nil)
	r1.persist = st1

	require.NoError(t, r1.SetString("network", "host", "192.168.50.5"))
	require.NoError(t, r1.SetInt("network", "http_port", 9090))
	require.NoError(t, r1.RegisterUser("admin", "correct-horse", "admin"))

	r2 := NewRuntime(nil, nil)
	st2 := NewStorage(path, r2, nil)
	require.NoError(t, st2.Load())

	host, err := r2.GetString("network", "host")
	require.NoError(t, err)
	require.Equal(t, "192.168.50.5", host)

	port, err := r2.GetInt("network", "http_port")
	require.NoError(t, err)
	require.Equal(t, int32(9090), port)

	require.True(t, r2.UserExists("admin"))
	level, err := r2.VerifyUser("admin", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, "admin", level)
}

func TestLoadMissingFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.ini")

	r := NewRuntime(nil, nil)
	st := NewStorage(path, r, nil)
	err := st.Load()
	require.Error(t, err)

	host, gerr := r.GetString("network", "host")
	require.NoError(t, gerr)
	require.Equal(t, "0.0.0.0", host)
}

func TestLoadRejectsBadChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.ini")
	require.NoError(t, os.WriteFile(path, []byte("[network]\nhost=10.0.0.9\nchecksum=deadbeef\n"), 0o600))

	r := NewRuntime(nil, nil)
	st := NewStorage(path, r, nil)
	err := st.Load()
	require.Error(t, err)

	host, gerr := r.GetString("network", "host")
	require.NoError(t, gerr)
	require.Equal(t, "0.0.0.0", host, "checksum failure must fall back to defaults, not the corrupted value")
}

func TestLoadAcceptsFileWithNoChecksumLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "no-checksum.ini")
	require.NoError(t, os.WriteFile(path, []byte("[network]\nhost=10.0.0.9\n"), 0o600))

	r := NewRuntime(nil, nil)
	st := NewStorage(path, r, nil)
	require.NoError(t, st.Load(), "a missing checksum line is optional, not a load failure")

	host, gerr := r.GetString("network", "host")
	require.NoError(t, gerr)
	require.Equal(t, "10.0.0.9", host, "the real on-disk value must load, not fall back to defaults")
}

func TestLoadSkipsInvalidFieldButKeepsRest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "degraded.ini")

	r1 := NewRuntime(nil, nil)
	require.NoError(t, r1.SetString("network", "host", "172.16.0.1"))
	st1 := NewStorage(path, r1, nil)
	require.NoError(t, st1.Save(r1.Snapshot()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	body, _, ok := splitChecksum(raw)
	require.True(t, ok)
	patched := string(body) + "http_port=999999\n"
	out := []byte(patched)
	sum := fmt.Sprintf("%08x", crc32.ChecksumIEEE(out))
	out = append(out, []byte("checksum="+sum+"\n")...)
	require.NoError(t, os.WriteFile(path, out, 0o600))

	r2 := NewRuntime(nil, nil)
	st2 := NewStorage(path, r2, nil)
	require.NoError(t, st2.Load())

	host, err := r2.GetString("network", "host")
	require.NoError(t, err)
	require.Equal(t, "172.16.0.1", host)

	port, err := r2.GetInt("network", "http_port")
	require.NoError(t, err)
	require.Equal(t, int32(8080), port, "the invalid out-of-range port must be rejected and left at its default")
}

func TestSaveOmitsDefaultValuedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.ini")

	r := NewRuntime(nil, nil)
	st := NewStorage(path, r, nil)
	require.NoError(t, st.Save(r.Snapshot()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "[network]", "an all-defaults snapshot should not emit any section body")
}
