package authn

import (
	"testing"
	"time"
)

func testRing(t *testing.T) *KeyRing {
	t.Helper()
	ring, err := NewKeyRing([]SignerKey{
		{Kid: "key-2025-07", Secret: []byte("supersecret1")},
		{Kid: "key-2025-06", Secret: []byte("supersecret2")},
	}, "key-2025-07")
	if err != nil {
		t.Fatalf("NewKeyRing: %v", err)
	}
	return ring
}

func TestNewKeyRingRejectsMissingDefault(t *testing.T) {
	_, err := NewKeyRing([]SignerKey{{Kid: "a", Secret: []byte("s")}}, "b")
	if err == nil {
		t.Fatalf("expected error when default_kid is absent from the ring")
	}
}

func TestNewKeyRingRejectsDuplicateKid(t *testing.T) {
	_, err := NewKeyRing([]SignerKey{
		{Kid: "a", Secret: []byte("s1")},
		{Kid: "a", Secret: []byte("s2")},
	}, "a")
	if err == nil {
		t.Fatalf("expected error on duplicate kid")
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	ring := testRing(t)
	now := time.Unix(1_700_000_000, 0).UTC()
	token, err := ring.SignNew("0xabc0000000000000000000000000000000dead", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SignNew: %v", err)
	}
	claims, err := ring.Verify(token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "0xabc0000000000000000000000000000000dead" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}

func TestVerifyFailsAfterKeyRemoved(t *testing.T) {
	ring := testRing(t)
	now := time.Unix(1_700_000_000, 0).UTC()
	token, err := ring.SignNew("0xabc0000000000000000000000000000000dead", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SignNew: %v", err)
	}

	rotated, err := NewKeyRing([]SignerKey{
		{Kid: "key-2025-06", Secret: []byte("supersecret2")},
	}, "key-2025-06")
	if err != nil {
		t.Fatalf("NewKeyRing: %v", err)
	}

	if _, err := rotated.Verify(token, now.Add(time.Minute)); err == nil {
		t.Fatalf("expected verification to fail once the signing kid is removed from the ring")
	}
}

func TestVerifyAcceptsExpiredWithinSkewRejectsBeyond(t *testing.T) {
	ring := testRing(t)
	now := time.Unix(1_700_000_000, 0).UTC()
	token, err := ring.SignNew("0xabc0000000000000000000000000000000dead", now, now.Add(30*time.Second))
	if err != nil {
		t.Fatalf("SignNew: %v", err)
	}

	if _, err := ring.Verify(token, now.Add(45*time.Second)); err != nil {
		t.Fatalf("expected verification within the 60s skew window to succeed: %v", err)
	}
	if _, err := ring.Verify(token, now.Add(2*time.Minute)); err == nil {
		t.Fatalf("expected verification well past expiry to fail")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	ring := testRing(t)
	now := time.Unix(1_700_000_000, 0).UTC()
	token, err := ring.SignNew("0xabc0000000000000000000000000000000dead", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SignNew: %v", err)
	}
	tampered := token[:len(token)-1] + "x"
	if _, err := ring.Verify(tampered, now); err == nil {
		t.Fatalf("expected tampered token to fail verification")
	}
}
