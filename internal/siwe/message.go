// Package siwe parses EIP-4361 "Sign-In with Ethereum" text messages and
// implements the session service built on top of the Nonce Store, Signature
// Verifier, and Key Ring.
package siwe

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed is returned for any input that does not conform to the
// EIP-4361 textual grammar this parser accepts.
var ErrMalformed = errors.New("siwe: malformed message")

// Message is the parsed form of an EIP-4361 text message, carrying the
// fields the session service inspects.
type Message struct {
	Domain         string
	Address        string
	URI            string
	Version        string
	ChainID        string
	Nonce          string
	Statement      string
	IssuedAt       time.Time
	ExpirationTime time.Time
	HasExpiration  bool
	NotBefore      time.Time
	HasNotBefore   bool
}

// preambleSuffix is the fixed tail of the opening line "<domain> wants you
// to sign in with your Ethereum account:", per EIP-4361.
const preambleSuffix = " wants you to sign in with your Ethereum account:"

// ParseMessage parses raw as an EIP-4361 message. It rejects malformed
// input outright; construction happens client-side, the server only parses
// and validates.
func ParseMessage(raw string) (*Message, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return nil, ErrMalformed
	}

	domain, ok := strings.CutSuffix(lines[0], preambleSuffix)
	if !ok || domain == "" {
		return nil, ErrMalformed
	}

	address := strings.TrimSpace(lines[1])
	if address == "" {
		return nil, ErrMalformed
	}

	msg := &Message{Domain: domain, Address: strings.ToLower(address)}

	rest := lines[2:]
	idx := 0

	// An optional statement occupies its own paragraph, separated by
	// blank lines from the address line and the field block: a blank
	// line, free text, then another blank line.
	if idx < len(rest) && rest[idx] == "" {
		idx++
		if idx < len(rest) && !strings.HasPrefix(rest[idx], "URI:") {
			msg.Statement = rest[idx]
			idx++
			if idx >= len(rest) || rest[idx] != "" {
				return nil, ErrMalformed
			}
			idx++
		}
	}

	fields := make(map[string]string)
	for ; idx < len(rest); idx++ {
		line := rest[idx]
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, ErrMalformed
		}
		fields[key] = value
	}

	var missing []string
	need := func(key string) string {
		v, ok := fields[key]
		if !ok {
			missing = append(missing, key)
		}
		return v
	}

	msg.URI = need("URI")
	msg.Version = need("Version")
	msg.ChainID = need("Chain ID")
	msg.Nonce = need("Nonce")
	issuedAtRaw := need("Issued At")
	if len(missing) > 0 {
		return nil, ErrMalformed
	}

	issuedAt, err := time.Parse(time.RFC3339, issuedAtRaw)
	if err != nil {
		return nil, ErrMalformed
	}
	msg.IssuedAt = issuedAt

	if raw, ok := fields["Expiration Time"]; ok {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, ErrMalformed
		}
		msg.ExpirationTime = t
		msg.HasExpiration = true
	}
	if raw, ok := fields["Not Before"]; ok {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, ErrMalformed
		}
		msg.NotBefore = t
		msg.HasNotBefore = true
	}

	// Chain ID must be decimal; reject anything else outright rather than
	// silently coercing it.
	if _, err := strconv.ParseUint(msg.ChainID, 10, 64); err != nil {
		return nil, ErrMalformed
	}

	return msg, nil
}
