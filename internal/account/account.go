// Package account defines the address model used across the engine:
// base58-encoded 32-byte identifiers. User wallets decode to points on the
// ed25519 curve; accounts owned by the engine itself are derived off-curve
// from labeled seeds, so they can never collide with a real keypair.
package account

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressLen is the decoded byte length of every address.
const AddressLen = 32

// derivedMarker is appended to derivation seeds so derived addresses live
// in their own preimage domain.
const derivedMarker = "FundexDerivedAccount"

var (
	// ErrInvalidAddress indicates a string that is not a base58-encoded
	// 32-byte value.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNotWallet indicates a well-formed address that is not an ed25519
	// public key and therefore cannot sign anything.
	ErrNotWallet = errors.New("address is not an ed25519 wallet")
)

// Reserved engine accounts. Deterministic, off-curve, never controllable by
// an external keypair.
var (
	// LockedShares holds the permanently locked minimum-floor share
	// balance minted on the bootstrap deposit.
	LockedShares = MustDerive("fundex:locked-shares")
	// ReserveFacility holds both reserve assets backing the AMM and is the
	// counterparty of every swap, deposit and flash loan transfer.
	ReserveFacility = MustDerive("fundex:reserve-facility")
	// FarmTreasury holds staked principal and the farming reward budget,
	// segregated from the AMM reserve.
	FarmTreasury = MustDerive("fundex:farm-treasury")
)

// Decode validates addr and returns its raw 32 bytes.
func Decode(addr string) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != AddressLen {
		return nil, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(raw))
	}
	return raw, nil
}

// Validate reports whether addr is a well-formed address.
func Validate(addr string) error {
	_, err := Decode(addr)
	return err
}

// IsWallet reports whether addr decodes to a point on the ed25519 curve,
// i.e. could belong to an external keypair. Derived engine accounts are
// deliberately off-curve and fail this check.
func IsWallet(addr string) bool {
	raw, err := Decode(addr)
	if err != nil {
		return false
	}
	return isOnCurve(raw)
}

// RequireWallet returns an error unless addr is a valid wallet address.
func RequireWallet(addr string) error {
	raw, err := Decode(addr)
	if err != nil {
		return err
	}
	if !isOnCurve(raw) {
		return fmt.Errorf("%w: %s", ErrNotWallet, addr)
	}
	return nil
}

// Derive produces a deterministic off-curve address from a label. The label
// is hashed together with a bump byte and the derivation marker, retrying
// with decreasing bumps until the digest falls off the curve.
func Derive(label string) (string, error) {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, len(label)+len(derivedMarker)+1)
		data = append(data, label...)
		data = append(data, bump)
		data = append(data, derivedMarker...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), nil
		}
	}
	return "", fmt.Errorf("derive %q: no off-curve bump found", label)
}

// MustDerive is Derive for labels known at init time.
func MustDerive(label string) string {
	addr, err := Derive(label)
	if err != nil {
		panic(err)
	}
	return addr
}

func isOnCurve(point []byte) bool {
	if len(point) != AddressLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
