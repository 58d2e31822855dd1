package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatterRedactsAuthorizationHeader(t *testing.T) {
	var buf bytes.Buffer
	l := GetLogger("test.auth")
	l.SetOutput(&buf)
	l.SetFormatter(NewFormatter("text"))

	l.WithField("header", "Digest").Info("rejected request: Authorization: Digest username=\"admin\", response=\"abc\"")

	out := buf.String()
	require.Contains(t, out, "<REDACTED>")
	require.NotContains(t, out, "abc")
}

func TestFormatterRedactsNamedFields(t *testing.T) {
	var buf bytes.Buffer
	l := GetLogger("test.fields")
	l.SetOutput(&buf)
	l.SetFormatter(NewFormatter("text"))

	l.WithFields(Fields{"password": "hunter2", "user": "admin"}).Info("login attempt")

	out := buf.String()
	require.Contains(t, out, "password=<REDACTED>")
	require.NotContains(t, out, "hunter2")
	require.Contains(t, out, "user=admin")
}

func TestFormatterRedactsWSSEPassword(t *testing.T) {
	var buf bytes.Buffer
	l := GetLogger("test.wsse")
	l.SetOutput(&buf)
	l.SetFormatter(NewFormatter("text"))

	l.Info("soap body: <wsse:Password Type=\"...\">supersecret</wsse:Password>")

	out := buf.String()
	require.Contains(t, out, "***REDACTED***")
	require.NotContains(t, out, "supersecret")
}

func TestFormatterLineShape(t *testing.T) {
	var buf bytes.Buffer
	l := GetLogger("test.shape")
	l.SetOutput(&buf)
	l.SetFormatter(NewFormatter("text"))

	l.Info("hello")

	out := buf.String()
	require.True(t, strings.Contains(out, "INFO ["))
	require.True(t, strings.Contains(out, "test.shape hello"))
}

func TestFormatterStripsControlCharacters(t *testing.T) {
	var buf bytes.Buffer
	l := GetLogger("test.ctrl")
	l.SetOutput(&buf)
	l.SetFormatter(NewFormatter("text"))

	l.Info("line one\nline two\x07")

	out := buf.String()
	require.NotContains(t, out, "\n\n")
	require.NotContains(t, out, "\x07")
}

func TestFormatterTruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	l := GetLogger("test.trunc")
	l.SetOutput(&buf)
	l.SetFormatter(NewFormatter("text"))

	l.Info(strings.Repeat("x", 4096))

	out := buf.String()
	require.LessOrEqual(t, len(out), maxLineBytes)
}

func TestNoticeLevelRenders(t *testing.T) {
	var buf bytes.Buffer
	l := GetLogger("test.notice")
	l.SetOutput(&buf)
	l.SetFormatter(NewFormatter("text"))

	l.Notice("generation bumped")

	require.Contains(t, buf.String(), "NOTICE")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warning")
	require.NoError(t, err)
	require.Equal(t, "warning", lvl.String())

	_, err = ParseLevel("bogus")
	require.Error(t, err)
}
