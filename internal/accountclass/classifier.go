// Package accountclass implements the Account Classifier: given an address,
// determine whether it is an externally-owned account, a smart contract, or
// an EIP-7702 delegated EOA, by inspecting the code the L2 reports for it.
package accountclass

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"siwegateway/internal/l2client"
)

// Class is the discriminant of Classification.
type Class int

const (
	// EOA is an address with no code.
	EOA Class = iota
	// Contract is an address with code that is not a delegation designator.
	Contract
	// Delegated is an EOA carrying an EIP-7702 delegation designator; the
	// code points at DelegateTarget.
	Delegated
)

func (c Class) String() string {
	switch c {
	case EOA:
		return "eoa"
	case Contract:
		return "contract"
	case Delegated:
		return "delegated"
	default:
		return "unknown"
	}
}

// delegationPrefix is the fixed 3-byte marker EIP-7702 requires at the head
// of a delegated account's code, followed by exactly 20 target-address
// bytes.
var delegationPrefix = [3]byte{0xef, 0x01, 0x00}

const delegationCodeLen = 3 + common.AddressLength

// Classification is the result of classifying an address.
type Classification struct {
	Class          Class
	DelegateTarget common.Address
}

// Classifier resolves an address's Classification via the L2's eth_getCode.
type Classifier struct {
	client l2client.Client
}

// NewClassifier builds a Classifier over client.
func NewClassifier(client l2client.Client) *Classifier {
	return &Classifier{client: client}
}

// Classify implements §4.3. A failure to reach the L2 is returned as an
// error, never silently treated as any particular class: callers must not
// fall back to a default classification on error.
func (c *Classifier) Classify(ctx context.Context, address common.Address) (Classification, error) {
	code, err := c.client.GetCode(ctx, address)
	if err != nil {
		return Classification{}, fmt.Errorf("accountclass: eth_getCode %s: %w", address, err)
	}
	if len(code) == 0 {
		return Classification{Class: EOA}, nil
	}
	if len(code) == delegationCodeLen &&
		code[0] == delegationPrefix[0] && code[1] == delegationPrefix[1] && code[2] == delegationPrefix[2] {
		return Classification{
			Class:          Delegated,
			DelegateTarget: common.BytesToAddress(code[3:]),
		}, nil
	}
	return Classification{Class: Contract}, nil
}
