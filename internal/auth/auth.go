// Package auth implements capability-based authorization for engine
// operations. A Caller carries an account identity plus the capabilities
// granted to it; every privileged entry point names the capability it
// requires instead of relying on an ambient identity.
package auth

import "errors"

// Capability names a right a caller may hold.
type Capability string

const (
	// CapAdmin guards administrative operations: tier configuration,
	// slippage bounds, farm pool management, pause and emergency
	// withdrawal.
	CapAdmin Capability = "admin"
	// CapLedger marks the trusted reserve-ledger identity. Tier
	// reclassification accepts only callers holding it.
	CapLedger Capability = "ledger"
)

// ErrUnauthorized indicates the caller lacks a required capability.
var ErrUnauthorized = errors.New("unauthorized")

// Caller is an authenticated operation context.
type Caller struct {
	Account string

	caps map[Capability]struct{}
}

// NewCaller builds a caller for account holding the given capabilities.
func NewCaller(account string, caps ...Capability) Caller {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return Caller{Account: account, caps: set}
}

// Has reports whether the caller holds capability.
func (c Caller) Has(capability Capability) bool {
	_, ok := c.caps[capability]
	return ok
}

// Require returns ErrUnauthorized unless the caller holds capability.
func (c Caller) Require(capability Capability) error {
	if !c.Has(capability) {
		return ErrUnauthorized
	}
	return nil
}
