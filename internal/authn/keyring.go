// Package authn implements the JWT key ring (issuance and rotation-aware
// verification) and the bearer-token identity resolution built on top of it.
package authn

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// clockSkew is the tolerance applied to exp/iat checks, per the fixed 60
// second window.
const clockSkew = 60 * time.Second

// SignerKey is a single entry of the key ring: a kid paired with its HMAC
// secret. algorithm is always HS256; the type exists to mirror the wire
// config shape (kid, secret) documented for jwt_signer_keys.
type SignerKey struct {
	Kid    string
	Secret []byte
}

// Claims is the JWT payload the gateway issues and verifies.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type jwtClaims struct {
	jwt.RegisteredClaims
}

// ErrUnknownKid is the key-lookup failure for a token whose header names no
// kid of the ring (or uses a non-HMAC method). Verify reports it, like every
// other failure, as ErrInvalidToken.
var ErrUnknownKid = errors.New("authn: unknown kid")

// ErrInvalidToken is the single error surfaced for every verification
// failure; callers must not distinguish causes from it (§4.2: "Errors are
// indistinguishable to the caller").
var ErrInvalidToken = errors.New("authn: invalid token")

// KeyRing holds every valid verification key plus the one used for newly
// minted tokens. It is immutable after construction and safe for concurrent
// use without synchronization.
type KeyRing struct {
	keys       map[string][]byte
	defaultKid string
}

// NewKeyRing validates and builds a KeyRing. defaultKid must name an entry
// of keys and kid values must be pairwise distinct.
func NewKeyRing(keys []SignerKey, defaultKid string) (*KeyRing, error) {
	if strings.TrimSpace(defaultKid) == "" {
		return nil, fmt.Errorf("authn: default_kid must not be empty")
	}
	byKid := make(map[string][]byte, len(keys))
	for _, k := range keys {
		kid := strings.TrimSpace(k.Kid)
		if kid == "" {
			return nil, fmt.Errorf("authn: signer key with empty kid")
		}
		if _, dup := byKid[kid]; dup {
			return nil, fmt.Errorf("authn: duplicate kid %q", kid)
		}
		if len(k.Secret) == 0 {
			return nil, fmt.Errorf("authn: signer key %q has empty secret", kid)
		}
		byKid[kid] = k.Secret
	}
	if _, ok := byKid[defaultKid]; !ok {
		return nil, fmt.Errorf("authn: default_kid %q does not reference a configured signer key", defaultKid)
	}
	return &KeyRing{keys: byKid, defaultKid: defaultKid}, nil
}

// SignNew signs claims with the default signer, embedding its kid in the
// token header, and returns the compact JWT.
func (r *KeyRing) SignNew(subject string, issuedAt, expiresAt time.Time) (string, error) {
	secret := r.keys[r.defaultKid]
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = r.defaultKid
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("authn: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a compact JWT: looks up the signer by the
// header's kid, checks the signature, then exp/iat with the 60s skew
// window. Every failure collapses to ErrInvalidToken.
func (r *KeyRing) Verify(tokenString string, now time.Time) (*Claims, error) {
	var claims jwtClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnknownKid
		}
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ErrUnknownKid
		}
		secret, ok := r.keys[kid]
		if !ok {
			return nil, ErrUnknownKid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return &Claims{
		Subject:   claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// DefaultKid reports the kid used for newly minted tokens.
func (r *KeyRing) DefaultKid() string {
	return r.defaultKid
}
