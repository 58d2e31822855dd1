package httpserver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleGET(t *testing.T) {
	raw := "GET /onvif/device_service HTTP/1.1\r\nHost: 192.168.1.1\r\n\r\n"
	req, err := ParseRequest([]byte(raw), 32*1024, "10.0.0.1:1234")
	require.NoError(t, err)
	require.Equal(t, "GET", req.Method)
	require.Equal(t, "/onvif/device_service", req.Target)
	require.Equal(t, "192.168.1.1", req.Host)
	require.True(t, req.KeepAlive)
}

func TestParseTolerateLFOnlyLineEndings(t *testing.T) {
	raw := "GET / HTTP/1.1\nHost: x\n\n"
	_, err := ParseRequest([]byte(raw), 1024, "")
	require.NoError(t, err)
}

func TestParseRejectsUnknownMethod(t *testing.T) {
	raw := "DELETE / HTTP/1.1\r\nHost: x\r\n\r\n"
	_, err := ParseRequest([]byte(raw), 1024, "")
	require.Error(t, err)
	perr, ok := err.(*ParseError)
	require.True(t, ok)
	require.Equal(t, 405, perr.Status)
	require.Equal(t, "GET, POST", perr.Headers["Allow"])
}

func TestParseRejectsMissingHost(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n\r\n"
	_, err := ParseRequest([]byte(raw), 1024, "")
	require.Error(t, err)
	require.Equal(t, 400, err.(*ParseError).Status)
}

func TestParseRejectsRepeatedHost(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: a\r\nHost: b\r\n\r\n"
	_, err := ParseRequest([]byte(raw), 1024, "")
	require.Error(t, err)
	require.Equal(t, 400, err.(*ParseError).Status)
}

func TestParseRejectsWhitespaceBeforeColon(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost : x\r\n\r\n"
	_, err := ParseRequest([]byte(raw), 1024, "")
	require.Error(t, err)
	require.Equal(t, 400, err.(*ParseError).Status)
}

func TestParseRejectsBadTransferEncoding(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: gzip\r\n\r\n"
	_, err := ParseRequest([]byte(raw), 1024, "")
	require.Error(t, err)
	require.Equal(t, 501, err.(*ParseError).Status)
}

func TestParseRejectsBothContentLengthAndTransferEncoding(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\nhello"
	_, err := ParseRequest([]byte(raw), 1024, "")
	require.Error(t, err)
	require.Equal(t, 400, err.(*ParseError).Status)
}

func TestParseContentLengthBody(t *testing.T) {
	raw := "POST /onvif/device_service HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello"
	req, err := ParseRequest([]byte(raw), 1024, "")
	require.NoError(t, err)
	require.Equal(t, "hello", string(req.Body))
}

func TestParseBodyExceedingBufferIs413(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 100\r\n\r\n" + string(make([]byte, 10))
	_, err := ParseRequest([]byte(raw), 16, "")
	require.Error(t, err)
	require.Equal(t, 413, err.(*ParseError).Status)
}

func TestParseChunkedBody(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n"
	req, err := ParseRequest([]byte(raw), 1024, "")
	require.NoError(t, err)
	require.Equal(t, "hello", string(req.Body))
}

func TestParseConnectionCloseOverridesKeepAlive(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"
	req, err := ParseRequest([]byte(raw), 1024, "")
	require.NoError(t, err)
	require.False(t, req.KeepAlive)
}

func TestResponseWriterRendersStatusAndHeaders(t *testing.T) {
	w := NewResponseWriter(200)
	w.SetHeader("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
	out := string(w.Bytes(fixedTime(t)))
	require.Contains(t, out, "HTTP/1.1 200 OK\r\n")
	require.Contains(t, out, "Content-Length: 2\r\n")
	require.Contains(t, out, "\r\n\r\nok")
}

func TestSOAPFaultSetsContentType(t *testing.T) {
	w := NewResponseWriter(401)
	w.SOAPFault("env:Sender", "wsse:FailedAuthentication", "bad credentials", "corr-1")
	out := string(w.Bytes(fixedTime(t)))
	require.Contains(t, out, "application/soap+xml; charset=utf-8")
	require.Contains(t, out, "wsse:FailedAuthentication")
	require.Contains(t, out, "corr-1")
}
