package rtsp

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadRequestParsesMethodURIAndHeaders(t *testing.T) {
	raw := "DESCRIBE rtsp://192.168.1.50/MainProfile RTSP/1.0\r\nCSeq: 1\r\nAccept: application/sdp\r\n\r\n"
	br := bufio.NewReader(strings.NewReader(raw))

	req, err := ReadRequest(br)
	require.NoError(t, err)
	require.Equal(t, "DESCRIBE", req.Method)
	require.Equal(t, "rtsp://192.168.1.50/MainProfile", req.URI)
	require.Equal(t, "1", req.CSeq)
	require.Equal(t, "application/sdp", req.Header("Accept"))
}

func TestReadRequestRejectsMalformedLine(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("NOTAREQUEST\r\n\r\n"))
	_, err := ReadRequest(br)
	require.Error(t, err)
}

func TestWriteResponseIncludesCSeqAndContentLength(t *testing.T) {
	var sb strings.Builder
	WriteResponse(&sb, 200, "OK", "7", map[string]string{"Session": "abc"}, "v=0\r\n")

	out := sb.String()
	require.Contains(t, out, "RTSP/1.0 200 OK")
	require.Contains(t, out, "CSeq: 7")
	require.Contains(t, out, "Content-Length: 5")
	require.Contains(t, out, "Session: abc")
}

func TestProfileTokenFromURIExtractsTrailingSegment(t *testing.T) {
	require.Equal(t, "MainProfile", profileTokenFromURI("rtsp://192.168.1.50:554/MainProfile"))
	require.Equal(t, "SubProfile", profileTokenFromURI("rtsp://192.168.1.50:554/SubProfile/"))
}
