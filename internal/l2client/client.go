// Package l2client wraps the narrow slice of the L2 JSON-RPC surface the
// Account Classifier and Signature Verifier depend on: eth_getCode and
// eth_call. It is the sole point of contact with the on-chain verification
// RPC named in configuration as l2_rpc_url.
package l2client

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// DefaultTimeout bounds every call issued through a Client, per the 10s
// default named for on-chain verification calls.
const DefaultTimeout = 10 * time.Second

// Client is the interface the Account Classifier and Signature Verifier
// consume. It is satisfied by *RPCClient and by test doubles.
type Client interface {
	// GetCode returns the code stored at address at the latest block. An
	// empty slice, not an error, represents an EOA.
	GetCode(ctx context.Context, address common.Address) ([]byte, error)
	// Call issues eth_call against to with the given calldata at the
	// latest block. reverted reports that the node returned a JSON-RPC
	// error response (revert or other execution failure) as opposed to a
	// transport-level failure; err is non-nil only for the latter.
	Call(ctx context.Context, to common.Address, data []byte) (result []byte, reverted bool, err error)
}

// RPCClient is the production Client, backed by a JSON-RPC connection to
// the L2 node.
type RPCClient struct {
	rpc     *rpc.Client
	timeout time.Duration
}

// Dial connects to the L2 RPC endpoint. The returned client applies
// DefaultTimeout to every call unless overridden with WithTimeout.
func Dial(ctx context.Context, url string) (*RPCClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &RPCClient{rpc: c, timeout: DefaultTimeout}, nil
}

// WithTimeout overrides the per-call timeout.
func (c *RPCClient) WithTimeout(d time.Duration) *RPCClient {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// GetCode implements Client via eth_getCode.
func (c *RPCClient) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var result hexutil.Bytes
	if err := c.rpc.CallContext(ctx, &result, "eth_getCode", address, "latest"); err != nil {
		return nil, err
	}
	return result, nil
}

// Call implements Client via eth_call.
func (c *RPCClient) Call(ctx context.Context, to common.Address, data []byte) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	callMsg := map[string]interface{}{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	var raw hexutil.Bytes
	err := c.rpc.CallContext(ctx, &raw, "eth_call", callMsg, "latest")
	if err == nil {
		return raw, false, nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		// The node answered with a JSON-RPC error object (revert or other
		// execution failure): a definitive verdict, not a transport fault.
		return nil, true, nil
	}
	return nil, false, err
}

// Close releases the underlying connection.
func (c *RPCClient) Close() {
	if c != nil && c.rpc != nil {
		c.rpc.Close()
	}
}
