// Package assets defines the fungible-asset ledger the engine collaborates
// with, and an in-memory bank implementing it for tests, simulations and
// single-process deployments.
package assets

import (
	"context"
	"errors"
	"math/big"
)

// Asset identifies a fungible asset by symbol.
type Asset string

var (
	// ErrInvalidAmount indicates a nil or negative amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientFunds indicates the source balance cannot cover a
	// transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientAllowance indicates the spender's allowance cannot
	// cover a TransferFrom.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Ledger is the narrow collaborator surface the engine calls: push value
// out of an account it controls, pull value under an allowance, and read
// balances.
type Ledger interface {
	// BalanceOf returns account's balance of asset. Unknown accounts hold
	// zero.
	BalanceOf(ctx context.Context, asset Asset, account string) (*big.Int, error)
	// Transfer moves amount of asset from one account to another.
	Transfer(ctx context.Context, asset Asset, from, to string, amount *big.Int) error
	// TransferFrom moves amount of asset from owner to recipient, spending
	// the allowance owner granted to spender.
	TransferFrom(ctx context.Context, asset Asset, spender, owner, to string, amount *big.Int) error
}

// TransactionalLedger is a Ledger whose effects can be rolled back to a
// snapshot. The engine requires this so every operation, including nested
// transfers made by flash-loan borrowers, commits or reverts as one unit.
type TransactionalLedger interface {
	Ledger

	// Snapshot marks the current state and returns its identifier.
	Snapshot() int
	// RevertTo undoes every change made after the snapshot was taken.
	RevertTo(id int)
}
