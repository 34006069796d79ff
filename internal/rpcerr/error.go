// Package rpcerr defines the closed set of error kinds the gateway can
// produce and their mapping onto JSON-RPC 2.0 error codes.
package rpcerr

import "errors"

// Kind classifies a gateway failure for the purposes of response mapping.
// The set is closed and small; see §7 of the design for the mapping table.
type Kind int

const (
	// KindParseError covers bodies that are not valid JSON at all.
	KindParseError Kind = iota
	// KindMalformedRequest covers bodies that parse as JSON but not as a
	// valid JSON-RPC 2.0 envelope (missing/wrong jsonrpc, missing method).
	KindMalformedRequest
	// KindMethodNotFound covers both genuinely unknown methods and denial of
	// an anonymous caller (anti-enumeration: the two are indistinguishable
	// on the wire).
	KindMethodNotFound
	// KindUnauthorized covers denial of an authenticated-but-insufficiently
	// privileged caller.
	KindUnauthorized
	// KindInvalidCredentials covers every failure path of siwe_signIn.
	KindInvalidCredentials
	// KindVerificationUnavailable covers transient failures reaching the L2
	// RPC during signature verification or account classification.
	KindVerificationUnavailable
	// KindUpstreamUnreachable covers transient failures forwarding to the
	// upstream RPC.
	KindUpstreamUnreachable
)

// Error is a gateway-level failure carrying both the caller-facing kind and
// an internal cause that is logged but never disclosed to the caller.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with a caller-facing message and an
// optional internal cause.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// ParseError is a convenience constructor for bodies that are not valid
// JSON.
func ParseError(cause error) *Error {
	return New(KindParseError, "parse error", cause)
}

// MalformedRequest is a convenience constructor for bodies that parse as
// JSON but not as a valid JSON-RPC 2.0 envelope.
func MalformedRequest(cause error) *Error {
	return New(KindMalformedRequest, "malformed request", cause)
}

// MethodNotFound is a convenience constructor covering both unknown methods
// and anonymous-caller denial.
func MethodNotFound(method string) *Error {
	return New(KindMethodNotFound, "method not found: "+method, nil)
}

// Unauthorized is a convenience constructor for insufficient-privilege denial.
func Unauthorized() *Error {
	return New(KindUnauthorized, "Unauthorized", nil)
}

// InvalidCredentials is a convenience constructor for siwe_signIn failures.
// The internal cause is retained for logging only.
func InvalidCredentials(cause error) *Error {
	return New(KindInvalidCredentials, "Invalid credentials", cause)
}

// VerificationUnavailable is a convenience constructor for transient L2 RPC
// failures encountered during signature verification or classification.
func VerificationUnavailable(cause error) *Error {
	return New(KindVerificationUnavailable, "signature verification temporarily unavailable", cause)
}

// UpstreamUnreachable is a convenience constructor for transient upstream
// forwarding failures.
func UpstreamUnreachable(cause error) *Error {
	return New(KindUpstreamUnreachable, "upstream RPC unreachable", cause)
}

// Code and Message JSON-RPC codes, per the mapping table.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeUnauthorized   = -32000
	CodeInternal       = -32603
)

// CodeAndMessage renders a Kind into the JSON-RPC (code, message) pair the
// caller sees. anonymous distinguishes an Unauthorized verdict rendered for
// an anonymous caller (which must look like MethodNotFound, per the
// anti-enumeration requirement) from one rendered for an authenticated
// caller.
func CodeAndMessage(kind Kind, anonymous bool) (int, string) {
	switch kind {
	case KindParseError:
		return CodeParseError, "Parse error"
	case KindMalformedRequest:
		return CodeInvalidRequest, "invalid request"
	case KindMethodNotFound:
		return CodeMethodNotFound, "Method not found"
	case KindUnauthorized:
		if anonymous {
			return CodeMethodNotFound, "Method not found"
		}
		return CodeUnauthorized, "Unauthorized"
	case KindInvalidCredentials:
		return CodeUnauthorized, "Invalid credentials"
	case KindVerificationUnavailable:
		return CodeInternal, "signature verification temporarily unavailable"
	case KindUpstreamUnreachable:
		return CodeInternal, "upstream RPC unreachable"
	default:
		return CodeInternal, "internal error"
	}
}

// As is a small helper mirroring errors.As for *Error, used by handlers that
// receive a plain error and need to know whether it already carries a Kind.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
