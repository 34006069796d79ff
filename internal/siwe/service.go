package siwe

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"siwegateway/internal/rpcerr"
	"siwegateway/internal/sigverify"
)

// clockSkew is the tolerance applied to not_before/expiration_time checks.
const clockSkew = 60 * time.Second

// NonceStore is the subset of the Nonce Store the session service depends
// on.
type NonceStore interface {
	Issue() (string, error)
	Consume(n string) bool
}

// Verifier is the subset of the Signature Verifier the session service
// depends on.
type Verifier interface {
	Verify(ctx context.Context, address common.Address, message string, signature []byte) error
}

// Signer is the subset of the Key Ring the session service depends on.
type Signer interface {
	SignNew(subject string, issuedAt, expiresAt time.Time) (string, error)
}

// Service implements siwe_getNonce and siwe_signIn.
type Service struct {
	nonces         NonceStore
	verifier       Verifier
	signer         Signer
	expectedDomain string // empty means accept any domain
	tokenLifetime  time.Duration
	nowFn          func() time.Time
}

// NewService builds a Service. expectedDomain empty disables the domain
// check.
func NewService(nonces NonceStore, verifier Verifier, signer Signer, expectedDomain string, tokenLifetime time.Duration) *Service {
	return &Service{
		nonces:         nonces,
		verifier:       verifier,
		signer:         signer,
		expectedDomain: expectedDomain,
		tokenLifetime:  tokenLifetime,
		nowFn:          time.Now,
	}
}

// GetNonce implements siwe_getNonce.
func (s *Service) GetNonce() (string, error) {
	n, err := s.nonces.Issue()
	if err != nil {
		return "", rpcerr.New(rpcerr.KindVerificationUnavailable, "nonce issuance failed", err)
	}
	return n, nil
}

// SignIn implements the 8-step siwe_signIn procedure. Every failure other
// than VerificationUnavailable is reported as InvalidCredentials with no
// further detail, per the anti-enumeration requirement.
func (s *Service) SignIn(ctx context.Context, message string, signatureHex string) (string, error) {
	now := s.nowFn()

	// 1. Parse.
	msg, err := ParseMessage(message)
	if err != nil {
		return "", rpcerr.InvalidCredentials(err)
	}

	// 2. Version.
	if msg.Version != "1" {
		return "", rpcerr.InvalidCredentials(errors.New("unsupported siwe version"))
	}

	// 3. Domain, only if configured.
	if s.expectedDomain != "" && msg.Domain != s.expectedDomain {
		return "", rpcerr.InvalidCredentials(errors.New("domain mismatch"))
	}

	// 4. Timing, with skew.
	if msg.HasNotBefore && now.Before(msg.NotBefore.Add(-clockSkew)) {
		return "", rpcerr.InvalidCredentials(errors.New("message not yet valid"))
	}
	if msg.HasExpiration && !now.Before(msg.ExpirationTime.Add(clockSkew)) {
		return "", rpcerr.InvalidCredentials(errors.New("message expired"))
	}

	// 5. Consume nonce.
	if !s.nonces.Consume(msg.Nonce) {
		return "", rpcerr.InvalidCredentials(errors.New("unknown or already-consumed nonce"))
	}

	if !common.IsHexAddress(msg.Address) {
		return "", rpcerr.InvalidCredentials(errors.New("malformed address"))
	}
	address := common.HexToAddress(msg.Address)

	signature, err := decodeSignature(signatureHex)
	if err != nil {
		return "", rpcerr.InvalidCredentials(err)
	}

	// 6. Verify signature. VerificationUnavailable is transient and does
	// not consume a second nonce; the nonce is already spent from step 5.
	if err := s.verifier.Verify(ctx, address, message, signature); err != nil {
		if errors.Is(err, sigverify.ErrVerificationUnavailable) {
			return "", rpcerr.VerificationUnavailable(err)
		}
		return "", rpcerr.InvalidCredentials(err)
	}

	// 7-8. Sign a fresh session token.
	subject := strings.ToLower(address.Hex())
	token, err := s.signer.SignNew(subject, now, now.Add(s.tokenLifetime))
	if err != nil {
		return "", rpcerr.New(rpcerr.KindVerificationUnavailable, "token issuance failed", err)
	}
	return token, nil
}

func decodeSignature(signatureHex string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(signatureHex), "0x")
	sig, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, errors.New("malformed signature encoding")
	}
	if len(sig) != 65 {
		return nil, errors.New("signature must be 65 bytes")
	}
	return sig, nil
}
