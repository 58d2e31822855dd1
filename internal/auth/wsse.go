package auth

import (
	"crypto/subtle"
	"time"

	"github.com/onvifcam/onvifd/internal/apperr"
)

// UsernameToken is a parsed <wsse:UsernameToken> element.
type UsernameToken struct {
	Username        string
	PasswordDigest  string // set when Password Type is PasswordDigest
	PasswordText    string // set when Password Type is PasswordText
	Nonce           string // base64
	Created         time.Time
}

// ClearTextLookup resolves a username to its clear-text-equivalent
// password, for the legacy PasswordText compatibility path only.
// Implementations MUST NOT derive this from a one-way hash.
type ClearTextLookup func(name string) (password string, ok bool)

// VerifyUsernameToken checks a WS-UsernameToken per spec.md §4.6.
// PasswordDigest is verified as Base64(SHA1(nonce + created + password));
// PasswordText is compared via constant-time equality and is only
// consulted when allowClearText is true (legacy compatibility mode).
func VerifyUsernameToken(tok *UsernameToken, passwordFor func(name string) (string, bool), allowClearText bool) error {
	if time.Since(tok.Created) > ReplayWindow || time.Until(tok.Created) > ReplayWindow {
		return apperr.New(apperr.KindAuth, opAuth, "UsernameToken Created is outside the replay window")
	}

	password, ok := passwordFor(tok.Username)
	if !ok {
		return apperr.New(apperr.KindAuth, opAuth, "invalid credentials")
	}

	switch {
	case tok.PasswordDigest != "":
		want := sha1Base64(tok.Nonce + tok.Created.UTC().Format(time.RFC3339) + password)
		if subtle.ConstantTimeCompare([]byte(want), []byte(tok.PasswordDigest)) != 1 {
			return apperr.New(apperr.KindAuth, opAuth, "invalid credentials")
		}
		return nil
	case tok.PasswordText != "" && allowClearText:
		if subtle.ConstantTimeCompare([]byte(tok.PasswordText), []byte(password)) != 1 {
			return apperr.New(apperr.KindAuth, opAuth, "invalid credentials")
		}
		return nil
	default:
		return apperr.New(apperr.KindAuth, opAuth, "no usable password type in UsernameToken")
	}
}
