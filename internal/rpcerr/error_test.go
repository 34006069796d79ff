package rpcerr

import (
	"errors"
	"testing"
)

func TestCodeAndMessageAntiEnumeration(t *testing.T) {
	code, message := CodeAndMessage(KindUnauthorized, true)
	if code != CodeMethodNotFound {
		t.Fatalf("expected Unauthorized rendered for an anonymous caller to look like MethodNotFound, got code %d", code)
	}
	if message != "Method not found" {
		t.Fatalf("unexpected message %q", message)
	}

	code, message = CodeAndMessage(KindUnauthorized, false)
	if code != CodeUnauthorized || message != "Unauthorized" {
		t.Fatalf("expected Unauthorized for an authenticated caller, got %d %q", code, message)
	}
}

func TestCodeAndMessageDistinguishesParseFromEnvelope(t *testing.T) {
	code, _ := CodeAndMessage(KindParseError, false)
	if code != CodeParseError {
		t.Fatalf("expected -32700 for parse errors, got %d", code)
	}
	code, _ = CodeAndMessage(KindMalformedRequest, false)
	if code != CodeInvalidRequest {
		t.Fatalf("expected -32600 for envelope errors, got %d", code)
	}
}

func TestAsRecoversErrorButNotItsStringCopy(t *testing.T) {
	base := InvalidCredentials(errors.New("bad nonce"))
	wrapped := errors.New("outer: " + base.Error())
	if _, ok := As(wrapped); ok {
		t.Fatalf("expected a plain wrapped string not to satisfy As")
	}
	if got, ok := As(base); !ok || got.Kind != KindInvalidCredentials {
		t.Fatalf("expected As to recover the *Error, got %v ok=%v", got, ok)
	}
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := New(KindVerificationUnavailable, "unavailable", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to see through to the cause")
	}
}
