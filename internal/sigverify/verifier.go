// Package sigverify implements the Signature Verifier: it validates a
// caller's signature over a SIWE message against their claimed address,
// dispatching between ECDSA recovery, ERC-1271, and EIP-7702 fallback
// according to what the Account Classifier reports for that address.
package sigverify

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"siwegateway/internal/accountclass"
	"siwegateway/internal/l2client"
)

// ErrInvalidSignature is returned when every applicable path rejects the
// signature. It is distinct from ErrVerificationUnavailable: callers must
// surface the two differently (authentication failure vs. transient server
// error).
var ErrInvalidSignature = errors.New("sigverify: invalid signature")

// ErrVerificationUnavailable is returned when an on-chain call needed to
// reach a verdict could not complete (L2 unreachable or timed out).
var ErrVerificationUnavailable = errors.New("sigverify: verification unavailable")

// isValidSignatureSelector is the 4-byte selector of
// isValidSignature(bytes32,bytes), ERC-1271.
var isValidSignatureSelector = [4]byte{0x16, 0x26, 0xba, 0x7e}

var erc1271Args abi.Arguments

func init() {
	bytes32Type, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		panic(err)
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	erc1271Args = abi.Arguments{
		{Type: bytes32Type},
		{Type: bytesType},
	}
}

// Verifier implements §4.4's dispatch algorithm.
type Verifier struct {
	classifier *accountclass.Classifier
	client     l2client.Client
}

// NewVerifier builds a Verifier over the given Account Classifier and L2
// client. Both share the same on-chain connection in practice.
func NewVerifier(classifier *accountclass.Classifier, client l2client.Client) *Verifier {
	return &Verifier{classifier: classifier, client: client}
}

// Verify checks signature over message for the claimed address. message is
// the exact SIWE text; the EIP-191 preamble is applied here during hashing.
// signature is 65 bytes: r || s || v, v in {27,28} or {0,1}.
func (v *Verifier) Verify(ctx context.Context, address common.Address, message string, signature []byte) error {
	digest := accounts.TextHash([]byte(message))

	class, err := v.classifier.Classify(ctx, address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	switch class.Class {
	case accountclass.EOA:
		return v.verifyEOA(digest, address, signature)

	case accountclass.Contract:
		ok, err := v.verifyERC1271(ctx, address, digest, signature)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
		}
		if !ok {
			return ErrInvalidSignature
		}
		return nil

	case accountclass.Delegated:
		ok, err := v.verifyERC1271(ctx, address, digest, signature)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
		}
		if ok {
			return nil
		}
		// Contract path reverted or returned non-matching data: fall back
		// to the EOA path against the original address, never the
		// delegation target.
		return v.verifyEOA(digest, address, signature)

	default:
		return fmt.Errorf("sigverify: unknown account class %v", class.Class)
	}
}

func (v *Verifier) verifyEOA(digest []byte, address common.Address, signature []byte) error {
	recoverable, err := normalizeRecoveryID(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	pub, err := ethcrypto.SigToPub(digest, recoverable)
	if err != nil {
		return ErrInvalidSignature
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)
	if recovered != address {
		return ErrInvalidSignature
	}
	return nil
}

// verifyERC1271 calls isValidSignature(digest, signature) on address and
// reports whether the return data matches the ERC-1271 magic value.
// reverted eth_call responses and non-matching return data both yield
// (false, nil); only a transport-level failure yields a non-nil error.
func (v *Verifier) verifyERC1271(ctx context.Context, address common.Address, digest []byte, signature []byte) (bool, error) {
	var hash [32]byte
	copy(hash[:], digest)

	packed, err := erc1271Args.Pack(hash, signature)
	if err != nil {
		return false, fmt.Errorf("sigverify: pack isValidSignature call: %w", err)
	}
	calldata := append(append([]byte{}, isValidSignatureSelector[:]...), packed...)

	result, reverted, err := v.client.Call(ctx, address, calldata)
	if err != nil {
		return false, err
	}
	if reverted {
		return false, nil
	}
	if len(result) < 4 {
		return false, nil
	}
	return bytes.Equal(result[:4], isValidSignatureSelector[:]), nil
}

// normalizeRecoveryID accepts both the {27,28} and {0,1} v encodings and
// returns a signature with v normalized to {0,1}, as go-ethereum's
// SigToPub requires.
func normalizeRecoveryID(signature []byte) ([]byte, error) {
	if len(signature) != 65 {
		return nil, errors.New("sigverify: signature must be 65 bytes")
	}
	out := make([]byte, 65)
	copy(out, signature)
	switch out[64] {
	case 0, 1:
		// already normalized
	case 27, 28:
		out[64] -= 27
	default:
		return nil, errors.New("sigverify: invalid recovery id")
	}
	return out, nil
}
