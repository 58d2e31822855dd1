package auth

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onvifcam/onvifd/internal/ratelimit"
)

func computeHA1(user, realm, pass string) string {
	sum := md5.Sum([]byte(user + ":" + realm + ":" + pass))
	return hex.EncodeToString(sum[:])
}

func TestDigestChallengeThenVerifySucceeds(t *testing.T) {
	ha1 := computeHA1("admin", "onvif", "secret")
	d := NewDigestAuthenticator("onvif", func(name string) (string, bool) {
		if name == "admin" {
			return ha1, true
		}
		return "", false
	})

	challenge, err := d.Challenge("203.0.113.1")
	require.NoError(t, err)
	nonce := extractParam(challenge, "nonce")

	ha2 := md5Hex("GET:/onvif/device_service")
	response := md5Hex(strings.Join([]string{ha1, nonce, ha2}, ":"))

	creds := &Credentials{Username: "admin", Nonce: nonce, URI: "/onvif/device_service", Response: response}
	require.NoError(t, d.Verify(creds, "GET"))
}

func TestDigestNonceIsSingleUse(t *testing.T) {
	ha1 := computeHA1("admin", "onvif", "secret")
	d := NewDigestAuthenticator("onvif", func(string) (string, bool) { return ha1, true })
	challenge, _ := d.Challenge("203.0.113.1")
	nonce := extractParam(challenge, "nonce")

	ha2 := md5Hex("GET:/x")
	response := md5Hex(strings.Join([]string{ha1, nonce, ha2}, ":"))
	creds := &Credentials{Username: "admin", Nonce: nonce, URI: "/x", Response: response}

	require.NoError(t, d.Verify(creds, "GET"))
	require.Error(t, d.Verify(creds, "GET"), "a nonce must not verify twice")
}

func TestDigestWrongResponseFails(t *testing.T) {
	ha1 := computeHA1("admin", "onvif", "secret")
	d := NewDigestAuthenticator("onvif", func(string) (string, bool) { return ha1, true })
	challenge, _ := d.Challenge("203.0.113.1")
	nonce := extractParam(challenge, "nonce")

	creds := &Credentials{Username: "admin", Nonce: nonce, URI: "/x", Response: "deadbeef"}
	require.Error(t, d.Verify(creds, "GET"))
}

func TestChallengeRateLimitsNonceIssuancePerClientIP(t *testing.T) {
	ha1 := computeHA1("admin", "onvif", "secret")
	d := NewDigestAuthenticator("onvif", func(string) (string, bool) { return ha1, true })
	d.SetNonceLimiter(ratelimit.New(1, 1))

	_, err := d.Challenge("198.51.100.9")
	require.NoError(t, err)
	_, err = d.Challenge("198.51.100.9")
	require.Error(t, err, "second challenge from the same client within the burst window must be denied")

	_, err = d.Challenge("198.51.100.10")
	require.NoError(t, err, "a distinct client IP must have its own bucket")
}

func TestParseAuthorizationHeader(t *testing.T) {
	header := `Digest username="admin", realm="onvif", nonce="abc123", uri="/onvif/device_service", response="deadbeef", qop=auth, nc=00000001, cnonce="xyz"`
	creds, err := ParseAuthorizationHeader(header)
	require.NoError(t, err)
	require.Equal(t, "admin", creds.Username)
	require.Equal(t, "onvif", creds.Realm)
	require.Equal(t, "auth", creds.QOP)
}

func TestParseAuthorizationHeaderRejectsNonDigest(t *testing.T) {
	_, err := ParseAuthorizationHeader("Basic abc123")
	require.Error(t, err)
}

func TestVerifyUsernameTokenPasswordDigest(t *testing.T) {
	nonce := "bm9uY2U="
	created := time.Now().UTC()
	password := "hunter2"
	digest := sha1Base64(nonce + created.Format(time.RFC3339) + password)

	tok := &UsernameToken{Username: "admin", PasswordDigest: digest, Nonce: nonce, Created: created}
	err := VerifyUsernameToken(tok, func(name string) (string, bool) {
		return password, name == "admin"
	}, false)
	require.NoError(t, err)
}

func TestVerifyUsernameTokenRejectsStaleCreated(t *testing.T) {
	tok := &UsernameToken{
		Username: "admin",
		PasswordDigest: "irrelevant",
		Nonce:    "n",
		Created:  time.Now().Add(-10 * time.Minute),
	}
	err := VerifyUsernameToken(tok, func(string) (string, bool) { return "x", true }, false)
	require.Error(t, err)
}

func TestVerifyUsernameTokenClearTextRequiresOptIn(t *testing.T) {
	tok := &UsernameToken{Username: "admin", PasswordText: "hunter2", Created: time.Now()}
	err := VerifyUsernameToken(tok, func(string) (string, bool) { return "hunter2", true }, false)
	require.Error(t, err, "PasswordText must be rejected unless legacy compatibility is explicitly enabled")

	err = VerifyUsernameToken(tok, func(string) (string, bool) { return "hunter2", true }, true)
	require.NoError(t, err)
}

func extractParam(header, key string) string {
	prefix := key + `="`
	idx := strings.Index(header, prefix)
	if idx == -1 {
		return ""
	}
	rest := header[idx+len(prefix):]
	end := strings.Index(rest, `"`)
	return rest[:end]
}
