package authn

import (
	"crypto/subtle"
	"strings"
	"time"
)

// IdentityKind is the discriminant of Identity.
type IdentityKind int

const (
	// Anonymous is the identity of a caller who presented no usable
	// credential.
	Anonymous IdentityKind = iota
	// UserIdentity is the identity of a caller who presented a valid
	// session token; Address holds the lowercase hex signer address.
	UserIdentity
	// AdminIdentity is the identity of a caller who presented a
	// constant-time-matching admin key.
	AdminIdentity
)

// Identity is the sum type produced once per request by the Token
// Validator. It is never persisted.
type Identity struct {
	Kind    IdentityKind
	Address string
}

// IsAnonymous reports whether the identity carries no privilege beyond the
// Public policy class.
func (i Identity) IsAnonymous() bool { return i.Kind == Anonymous }

// IsAdmin reports whether the identity has full privileges.
func (i Identity) IsAdmin() bool { return i.Kind == AdminIdentity }

// TokenValidator turns the raw Authorization header into an Identity.
type TokenValidator struct {
	ring      *KeyRing
	adminKeys [][]byte
}

// NewTokenValidator builds a TokenValidator over the given key ring and
// admin bearer values. An empty adminKeys means no admin path exists.
func NewTokenValidator(ring *KeyRing, adminKeys []string) *TokenValidator {
	keys := make([][]byte, 0, len(adminKeys))
	for _, k := range adminKeys {
		if k == "" {
			continue
		}
		keys = append(keys, []byte(k))
	}
	return &TokenValidator{ring: ring, adminKeys: keys}
}

// Resolve implements §4.6: absent/malformed Authorization yields Anonymous;
// a constant-time match against any admin key yields Admin (checked before
// JWT parsing, so admin tokens need not conform to JWT shape); otherwise a
// successful Key Ring verification yields User(address), and any failure
// yields Anonymous.
func (v *TokenValidator) Resolve(authorizationHeader string, now time.Time) Identity {
	token, ok := bearerToken(authorizationHeader)
	if !ok {
		return Identity{Kind: Anonymous}
	}
	if v.isAdminKey(token) {
		return Identity{Kind: AdminIdentity}
	}
	claims, err := v.ring.Verify(token, now)
	if err != nil {
		return Identity{Kind: Anonymous}
	}
	address := strings.ToLower(strings.TrimSpace(claims.Subject))
	if !looksLikeAddress(address) {
		return Identity{Kind: Anonymous}
	}
	return Identity{Kind: UserIdentity, Address: address}
}

func (v *TokenValidator) isAdminKey(token string) bool {
	tokenBytes := []byte(token)
	matched := false
	for _, key := range v.adminKeys {
		if subtle.ConstantTimeCompare(tokenBytes, key) == 1 {
			matched = true
		}
	}
	return matched
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

func looksLikeAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 42 {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
