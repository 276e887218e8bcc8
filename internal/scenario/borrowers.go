package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"fundex/internal/account"
	"fundex/internal/assets"
	"fundex/internal/auth"
	"fundex/internal/engine"
)

// Flash borrower behaviors accepted in flash_loan steps.
const (
	BehaviorRepayExact = "repay_exact" // repay principal + fee
	BehaviorRepay      = "repay"       // repay the step's repay_amount
	BehaviorUnderpay   = "underpay"    // repay the principal, skip the fee
	BehaviorAbort      = "abort"       // return an error from the callback
	BehaviorReenter    = "reenter"     // call back into the engine
)

// scriptedBorrower plays one behavior inside a flash loan callback.
// Repayment goes straight through the bank: the engine rejects any call
// back into itself for the whole callback.
type scriptedBorrower struct {
	bank     *assets.Bank
	engine   *engine.Engine
	asset    assets.Asset
	caller   auth.Caller
	behavior string
	repay    *big.Int
}

func (b *scriptedBorrower) OnFlashLoan(ctx context.Context, amount, fee *big.Int, data []byte) error {
	switch b.behavior {
	case BehaviorRepayExact:
		owed := new(big.Int).Add(amount, fee)
		return b.bank.Transfer(ctx, b.asset, b.caller.Account, account.ReserveFacility, owed)
	case BehaviorRepay:
		if b.repay == nil {
			return errors.New("repay behavior needs repay_amount")
		}
		return b.bank.Transfer(ctx, b.asset, b.caller.Account, account.ReserveFacility, b.repay)
	case BehaviorUnderpay:
		return b.bank.Transfer(ctx, b.asset, b.caller.Account, account.ReserveFacility, amount)
	case BehaviorAbort:
		return errors.New("scripted abort")
	case BehaviorReenter:
		_, err := b.engine.SwapBForA(ctx, b.caller, amount, nil)
		return err
	default:
		return fmt.Errorf("unknown borrower behavior %q", b.behavior)
	}
}
