package assets

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

// Bank is an in-memory multi-asset ledger with journaled writes. It stands
// in for the platform's external fungible-asset ledger: balances,
// allowances, and snapshot/revert in the style of an execution
// environment's state store. Every write appends an undo entry, so
// RevertTo can unwind any suffix of the history.
type Bank struct {
	mu         sync.Mutex
	balances   map[Asset]map[string]*big.Int
	allowances map[Asset]map[string]map[string]*big.Int
	journal    []func()
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances:   make(map[Asset]map[string]*big.Int),
		allowances: make(map[Asset]map[string]map[string]*big.Int),
	}
}

// Compile-time interface check.
var _ TransactionalLedger = (*Bank)(nil)

// BalanceOf returns account's balance of asset; unknown accounts hold zero.
func (b *Bank) BalanceOf(_ context.Context, asset Asset, account string) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneBig(b.balance(asset, account)), nil
}

// Allowance returns what owner has approved spender to move.
func (b *Bank) Allowance(_ context.Context, asset Asset, owner, spender string) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneBig(b.allowance(asset, owner, spender)), nil
}

// Mint credits amount of asset to account out of thin air. Administrative;
// real deployments fund accounts on the external ledger instead.
func (b *Bank) Mint(_ context.Context, asset Asset, account string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setBalance(asset, account, new(big.Int).Add(b.balance(asset, account), amount))
	return nil
}

// Approve sets spender's allowance over owner's asset balance.
func (b *Bank) Approve(_ context.Context, asset Asset, owner, spender string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setAllowance(asset, owner, spender, cloneBig(amount))
	return nil
}

// Transfer moves amount of asset from one account to another.
func (b *Bank) Transfer(_ context.Context, asset Asset, from, to string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.move(asset, from, to, amount)
}

// TransferFrom moves amount of asset from owner to recipient, consuming the
// allowance owner granted to spender.
func (b *Bank) TransferFrom(_ context.Context, asset Asset, spender, owner, to string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	allowed := b.allowance(asset, owner, spender)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allowed %s, need %s", ErrInsufficientAllowance, asset, allowed, amount)
	}
	if err := b.move(asset, owner, to, amount); err != nil {
		return err
	}
	b.setAllowance(asset, owner, spender, new(big.Int).Sub(allowed, amount))
	return nil
}

// Snapshot marks the current journal position.
func (b *Bank) Snapshot() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.journal)
}

// RevertTo unwinds every write made after the snapshot id was taken.
func (b *Bank) RevertTo(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id < 0 || id > len(b.journal) {
		return
	}
	for i := len(b.journal) - 1; i >= id; i-- {
		b.journal[i]()
	}
	b.journal = b.journal[:id]
}

// move transfers value between balances. Callers hold b.mu.
func (b *Bank) move(asset Asset, from, to string, amount *big.Int) error {
	if amount.Sign() == 0 || from == to {
		return nil
	}
	src := b.balance(asset, from)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, need %s", ErrInsufficientFunds, from, src, asset, amount)
	}
	b.setBalance(asset, from, new(big.Int).Sub(src, amount))
	b.setBalance(asset, to, new(big.Int).Add(b.balance(asset, to), amount))
	return nil
}

// balance returns the stored balance without copying. Callers hold b.mu and
// must not mutate the result.
func (b *Bank) balance(asset Asset, account string) *big.Int {
	if accounts, ok := b.balances[asset]; ok {
		if v, ok := accounts[account]; ok {
			return v
		}
	}
	return zero
}

func (b *Bank) allowance(asset Asset, owner, spender string) *big.Int {
	if owners, ok := b.allowances[asset]; ok {
		if spenders, ok := owners[owner]; ok {
			if v, ok := spenders[spender]; ok {
				return v
			}
		}
	}
	return zero
}

// setBalance journals the previous value and stores the new one. Stored
// values are never mutated in place, so restoring the old pointer is safe.
func (b *Bank) setBalance(asset Asset, account string, value *big.Int) {
	accounts, ok := b.balances[asset]
	if !ok {
		accounts = make(map[string]*big.Int)
		b.balances[asset] = accounts
	}
	prev, existed := accounts[account]
	b.journal = append(b.journal, func() {
		if existed {
			accounts[account] = prev
		} else {
			delete(accounts, account)
		}
	})
	accounts[account] = value
}

func (b *Bank) setAllowance(asset Asset, owner, spender string, value *big.Int) {
	owners, ok := b.allowances[asset]
	if !ok {
		owners = make(map[string]map[string]*big.Int)
		b.allowances[asset] = owners
	}
	spenders, ok := owners[owner]
	if !ok {
		spenders = make(map[string]*big.Int)
		owners[owner] = spenders
	}
	prev, existed := spenders[spender]
	b.journal = append(b.journal, func() {
		if existed {
			spenders[spender] = prev
		} else {
			delete(spenders, spender)
		}
	})
	spenders[spender] = value
}

var zero = new(big.Int)

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func cloneBig(v *big.Int) *big.Int {
	return new(big.Int).Set(v)
}
