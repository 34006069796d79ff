// Package policy implements the Authorization Filter: given an identity and
// a JSON-RPC method name, decide whether the call is allowed.
package policy

import "siwegateway/internal/authn"

// Verdict is the outcome of a policy decision.
type Verdict int

const (
	// Allow permits the call to proceed.
	Allow Verdict = iota
	// Deny rejects the call. The caller must consult the requester's
	// identity to render the correct JSON-RPC error: MethodNotFound for
	// Anonymous, Unauthorized otherwise.
	Deny
)

// publicMethods are readable by Anonymous callers.
var publicMethods = map[string]struct{}{
	"eth_chainId":        {},
	"eth_blockNumber":    {},
	"eth_gasPrice":       {},
	"net_version":        {},
	"web3_clientVersion": {},
	"siwe_getNonce":      {},
	"siwe_signIn":        {},
}

// userMethods require User or Admin. Anything not in publicMethods and not
// listed here requires Admin: the default posture is deny.
var userMethods = map[string]struct{}{
	"eth_getBalance":          {},
	"eth_getTransactionCount": {},
	"eth_call":                {},
	"eth_estimateGas":         {},
	"eth_getLogs":             {},
	"eth_sendRawTransaction":  {},
}

// Evaluate decides Allow/Deny for method under identity. Address-scoping is
// not enforced: a User identity may query any address's data, per §4.7 —
// the session proves possession, not address ownership beyond sign-in.
func Evaluate(identity authn.Identity, method string) Verdict {
	if _, ok := publicMethods[method]; ok {
		return Allow
	}
	if identity.IsAdmin() {
		return Allow
	}
	if _, ok := userMethods[method]; ok {
		if identity.IsAnonymous() {
			return Deny
		}
		return Allow
	}
	return Deny
}
