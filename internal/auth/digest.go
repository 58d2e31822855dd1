// Package auth implements spec.md §4.6: HTTP Digest challenge/verify
// against the Config Runtime's stored HA1 digests, and WS-UsernameToken
// extraction/verification for the SOAP path. Grounded on the teacher's
// crypto-hygiene conventions in internal/security (constant-time compares,
// never logging secrets) though that package's JWT/session-token machinery
// itself does not survive into this domain — see DESIGN.md.
package auth

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/ratelimit"
)

const opAuth = "auth"

// NonceValidity and ReplayWindow are the spec's fixed validity windows.
const (
	NonceValidity = 5 * time.Minute
	ReplayWindow  = 5 * time.Minute
)

// HA1Lookup resolves a username to its stored HA1 = MD5(user:realm:pass)
// digest. Implemented by config.Runtime.LookupHA1.
type HA1Lookup func(name string) (ha1 string, ok bool)

type nonceState struct {
	issuedAt time.Time
	used     bool
}

// DigestAuthenticator issues and verifies HTTP Digest challenges for a
// fixed realm, per spec.md §4.6.
type DigestAuthenticator struct {
	realm     string
	lookupHA1 HA1Lookup

	mu     sync.Mutex
	nonces map[string]*nonceState

	// nonceLimiter rate-limits Challenge per client IP, per SPEC_FULL.md
	// §4.15. Nil (the default) issues nonces unconditionally.
	nonceLimiter *ratelimit.Limiter
}

// NewDigestAuthenticator builds an authenticator for realm, backed by
// lookupHA1.
func NewDigestAuthenticator(realm string, lookupHA1 HA1Lookup) *DigestAuthenticator {
	return &DigestAuthenticator{realm: realm, lookupHA1: lookupHA1, nonces: map[string]*nonceState{}}
}

// SetNonceLimiter installs l to rate-limit nonce issuance per client IP.
func (d *DigestAuthenticator) SetNonceLimiter(l *ratelimit.Limiter) {
	d.nonceLimiter = l
}

// Challenge returns the WWW-Authenticate header value for a fresh 401
// response, and records the issued nonce for single-use verification.
// clientIP is consumed by the nonce-issuance rate limiter, if one is
// installed.
func (d *DigestAuthenticator) Challenge(clientIP string) (string, error) {
	if d.nonceLimiter != nil && !d.nonceLimiter.Allow(clientIP) {
		return "", apperr.New(apperr.KindResource, opAuth, "nonce issuance rate limit exceeded")
	}

	nonce, err := randomNonce()
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, opAuth, "failed to generate nonce", err)
	}
	d.mu.Lock()
	d.nonces[nonce] = &nonceState{issuedAt: time.Now()}
	d.mu.Unlock()

	return fmt.Sprintf(`Digest realm="%s", nonce="%s", qop="auth", algorithm=MD5`, d.realm, nonce), nil
}

func randomNonce() (string, error) {
	b := make([]byte, 16) // 128-bit
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Credentials is a parsed Authorization: Digest header.
type Credentials struct {
	Username string
	Realm    string
	Nonce    string
	URI      string
	Response string
	QOP      string
	NC       string
	CNonce   string
}

// ParseAuthorizationHeader parses an `Authorization: Digest ...` header
// value into its component key=value pairs.
func ParseAuthorizationHeader(value string) (*Credentials, error) {
	const prefix = "Digest "
	if !strings.HasPrefix(value, prefix) {
		return nil, apperr.New(apperr.KindAuth, opAuth, "not a Digest authorization header")
	}
	fields := splitDigestParams(strings.TrimPrefix(value, prefix))
	c := &Credentials{
		Username: fields["username"],
		Realm:    fields["realm"],
		Nonce:    fields["nonce"],
		URI:      fields["uri"],
		Response: fields["response"],
		QOP:      fields["qop"],
		NC:       fields["nc"],
		CNonce:   fields["cnonce"],
	}
	if c.Username == "" || c.Nonce == "" || c.Response == "" {
		return nil, apperr.New(apperr.KindAuth, opAuth, "incomplete Digest credentials")
	}
	return c, nil
}

func splitDigestParams(s string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		idx := strings.IndexByte(part, '=')
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(part[:idx])
		val := strings.Trim(strings.TrimSpace(part[idx+1:]), `"`)
		out[key] = val
	}
	return out
}

// Verify checks creds against the stored HA1 for creds.Username, the
// request method, and the issued nonce's single-use/validity state.
func (d *DigestAuthenticator) Verify(creds *Credentials, method string) error {
	d.mu.Lock()
	st, ok := d.nonces[creds.Nonce]
	if ok {
		if st.used {
			d.mu.Unlock()
			return apperr.New(apperr.KindAuth, opAuth, "nonce already used")
		}
		if time.Since(st.issuedAt) > NonceValidity {
			delete(d.nonces, creds.Nonce)
			d.mu.Unlock()
			return apperr.New(apperr.KindAuth, opAuth, "nonce expired")
		}
		st.used = true
	}
	d.mu.Unlock()
	if !ok {
		return apperr.New(apperr.KindAuth, opAuth, "unknown nonce")
	}

	ha1, ok := d.lookupHA1(creds.Username)
	if !ok {
		return apperr.New(apperr.KindAuth, opAuth, "invalid credentials")
	}

	ha2 := md5Hex(method + ":" + creds.URI)
	var want string
	if creds.QOP == "auth" {
		want = md5Hex(strings.Join([]string{ha1, creds.Nonce, creds.NC, creds.CNonce, creds.QOP, ha2}, ":"))
	} else {
		want = md5Hex(strings.Join([]string{ha1, creds.Nonce, ha2}, ":"))
	}

	if subtle.ConstantTimeCompare([]byte(want), []byte(creds.Response)) != 1 {
		return apperr.New(apperr.KindAuth, opAuth, "invalid credentials")
	}
	return nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// sha1Base64 computes Base64(SHA1(s)), used by WS-UsernameToken
// PasswordDigest verification.
func sha1Base64(s string) string {
	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}
