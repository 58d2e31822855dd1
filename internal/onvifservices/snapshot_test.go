package onvifservices

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/config"
)

type fakeSnapshotSource struct {
	jpeg []byte
	err  error
}

func (f *fakeSnapshotSource) CaptureJPEG(string) ([]byte, error) { return f.jpeg, f.err }

func TestSnapshotHandlerDefaultsToMainProfile(t *testing.T) {
	r := config.NewRuntime(nil, nil)
	src := &fakeSnapshotSource{jpeg: []byte("jpeg-bytes")}
	h := NewSnapshotHandler(r, src)

	out, err := h.Serve("")
	require.NoError(t, err)
	require.Equal(t, []byte("jpeg-bytes"), out)
}

func TestSnapshotHandlerRejectsUnknownProfile(t *testing.T) {
	r := config.NewRuntime(nil, nil)
	src := &fakeSnapshotSource{jpeg: []byte("jpeg-bytes")}
	h := NewSnapshotHandler(r, src)

	_, err := h.Serve("nonexistent")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestHealthHandlerReportsOkByDefault(t *testing.T) {
	h := NewHealthHandler(nil)
	require.Equal(t, "status=ok\n", h.Serve())
}

func TestHealthHandlerReportsDegraded(t *testing.T) {
	h := NewHealthHandler(func() bool { return true })
	require.Equal(t, "status=degraded\n", h.Serve())
}
