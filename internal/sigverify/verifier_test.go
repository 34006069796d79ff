package sigverify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"siwegateway/internal/accountclass"
)

type fakeL2 struct {
	code           []byte
	codeErr        error
	callResult     []byte
	callReverted   bool
	callErr        error
	lastCallTarget common.Address
	lastCallData   []byte
}

func (f *fakeL2) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	return f.code, f.codeErr
}

func (f *fakeL2) Call(ctx context.Context, to common.Address, data []byte) ([]byte, bool, error) {
	f.lastCallTarget = to
	f.lastCallData = data
	return f.callResult, f.callReverted, f.callErr
}

func sign(t *testing.T, key []byte, message string) ([]byte, common.Address) {
	t.Helper()
	priv, err := ethcrypto.ToECDSA(key)
	if err != nil {
		t.Fatalf("ToECDSA: %v", err)
	}
	digest := accounts.TextHash([]byte(message))
	sig, err := ethcrypto.Sign(digest, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return sig, ethcrypto.PubkeyToAddress(priv.PublicKey)
}

func testKey32() []byte {
	k := make([]byte, 32)
	k[31] = 0x01
	for i := range k {
		k[i] = byte(i + 1)
	}
	return k
}

func TestVerifyEOAValidSignature(t *testing.T) {
	message := "example.com wants you to sign in with your Ethereum account"
	sig, addr := sign(t, testKey32(), message)

	l2 := &fakeL2{code: nil}
	v := NewVerifier(accountclass.NewClassifier(l2), l2)
	if err := v.Verify(context.Background(), addr, message, sig); err != nil {
		t.Fatalf("expected valid EOA signature to verify, got %v", err)
	}
}

func TestVerifyEOAAcceptsLegacyRecoveryEncoding(t *testing.T) {
	message := "example.com wants you to sign in with your Ethereum account"
	sig, addr := sign(t, testKey32(), message)
	legacy := append([]byte{}, sig...)
	legacy[64] += 27

	l2 := &fakeL2{code: nil}
	v := NewVerifier(accountclass.NewClassifier(l2), l2)
	if err := v.Verify(context.Background(), addr, message, legacy); err != nil {
		t.Fatalf("expected {27,28}-encoded recovery id to verify, got %v", err)
	}
}

func TestVerifyEOAWrongAddressFails(t *testing.T) {
	message := "example.com wants you to sign in with your Ethereum account"
	sig, _ := sign(t, testKey32(), message)
	other := common.HexToAddress("0xdeadbeef00000000000000000000000000dead")

	l2 := &fakeL2{code: nil}
	v := NewVerifier(accountclass.NewClassifier(l2), l2)
	err := v.Verify(context.Background(), other, message, sig)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyEOARoundTripFlippedSignatureBitFails(t *testing.T) {
	message := "example.com wants you to sign in with your Ethereum account"
	sig, addr := sign(t, testKey32(), message)

	l2 := &fakeL2{code: nil}
	v := NewVerifier(accountclass.NewClassifier(l2), l2)
	if err := v.Verify(context.Background(), addr, message, sig); err != nil {
		t.Fatalf("expected the unmodified signature to verify, got %v", err)
	}

	flipped := append([]byte{}, sig...)
	flipped[0] ^= 0x01
	err := v.Verify(context.Background(), addr, message, flipped)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected flipping a signature bit to yield ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyContractAcceptsMagicValue(t *testing.T) {
	magic := append(append([]byte{}, isValidSignatureSelector[:]...), make([]byte, 28)...)
	l2 := &fakeL2{
		code:       []byte{0x60, 0x80},
		callResult: magic,
	}
	v := NewVerifier(accountclass.NewClassifier(l2), l2)
	addr := common.HexToAddress("0x1")
	if err := v.Verify(context.Background(), addr, "msg", make([]byte, 65)); err != nil {
		t.Fatalf("expected ERC-1271 magic value to verify, got %v", err)
	}
	if l2.lastCallTarget != addr {
		t.Fatalf("expected eth_call to target the account, got %s", l2.lastCallTarget)
	}
	if !bytes.HasPrefix(l2.lastCallData, isValidSignatureSelector[:]) {
		t.Fatalf("expected calldata to begin with the isValidSignature selector")
	}
}

func TestVerifyContractRevertFails(t *testing.T) {
	l2 := &fakeL2{code: []byte{0x60, 0x80}, callReverted: true}
	v := NewVerifier(accountclass.NewClassifier(l2), l2)
	err := v.Verify(context.Background(), common.HexToAddress("0x1"), "msg", make([]byte, 65))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature on revert, got %v", err)
	}
}

func TestVerifyContractTransportFailureIsUnavailable(t *testing.T) {
	l2 := &fakeL2{code: []byte{0x60, 0x80}, callErr: errors.New("dial tcp: timeout")}
	v := NewVerifier(accountclass.NewClassifier(l2), l2)
	err := v.Verify(context.Background(), common.HexToAddress("0x1"), "msg", make([]byte, 65))
	if !errors.Is(err, ErrVerificationUnavailable) {
		t.Fatalf("expected ErrVerificationUnavailable, got %v", err)
	}
}

func TestVerifyDelegatedFallsBackToEOA(t *testing.T) {
	message := "example.com wants you to sign in with your Ethereum account"
	sig, addr := sign(t, testKey32(), message)

	target := common.HexToAddress("0x00000000000000000000000000000000009999")
	code := append([]byte{0xef, 0x01, 0x00}, target.Bytes()...)
	// Contract path reverts, so verification must fall back to the EOA
	// path against the original address, not the delegation target.
	l2 := &fakeL2{code: code, callReverted: true}
	v := NewVerifier(accountclass.NewClassifier(l2), l2)

	if err := v.Verify(context.Background(), addr, message, sig); err != nil {
		t.Fatalf("expected delegated fallback to EOA path to verify, got %v", err)
	}
}

func TestVerifyDelegatedContractPathWins(t *testing.T) {
	target := common.HexToAddress("0x00000000000000000000000000000000009999")
	code := append([]byte{0xef, 0x01, 0x00}, target.Bytes()...)
	magic := append(append([]byte{}, isValidSignatureSelector[:]...), make([]byte, 28)...)
	l2 := &fakeL2{code: code, callResult: magic}
	v := NewVerifier(accountclass.NewClassifier(l2), l2)

	addr := common.HexToAddress("0x1")
	if err := v.Verify(context.Background(), addr, "msg", make([]byte, 65)); err != nil {
		t.Fatalf("expected delegated contract-path success to verify, got %v", err)
	}
}

func TestVerifyClassificationFailurePropagates(t *testing.T) {
	l2 := &fakeL2{codeErr: errors.New("connection refused")}
	v := NewVerifier(accountclass.NewClassifier(l2), l2)
	err := v.Verify(context.Background(), common.HexToAddress("0x1"), "msg", make([]byte, 65))
	if !errors.Is(err, ErrVerificationUnavailable) {
		t.Fatalf("expected classification failure to surface as ErrVerificationUnavailable, got %v", err)
	}
}
