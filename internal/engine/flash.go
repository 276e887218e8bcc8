package engine

import (
	"context"
	"fmt"
	"math/big"

	"fundex/internal/account"
	"fundex/internal/auth"
	"fundex/internal/domain"
)

// FlashBorrower is the strategy a flash loan caller supplies to use the
// borrowed funds.
type FlashBorrower interface {
	// OnFlashLoan runs synchronously after the principal has arrived at
	// the borrower account. By the time it returns, the facility balance
	// must have grown by at least amount+fee, measured by the engine as
	// an actual balance delta. Returning an error aborts the whole
	// operation including the outbound transfer. Any call back into the
	// engine fails ErrReentrant.
	OnFlashLoan(ctx context.Context, amount, fee *big.Int, data []byte) error
}

// FlashLoan lends amount of asset B from the reserve facility to the
// caller for the duration of the borrower callback. The caller must hold
// a nonzero enabled tier; the fee is amount * tier fee bps / 10000,
// truncating. Repayment is judged solely by the facility balance delta
// after the callback, which tolerates fee-skimming counter-assets: a
// claimed transfer that did not actually arrive fails the loan.
func (e *Engine) FlashLoan(ctx context.Context, caller auth.Caller, amount *big.Int, data []byte, borrower FlashBorrower) error {
	return e.execute(func() error {
		if e.st.pool.Paused {
			return ErrEnginePaused
		}
		if err := account.RequireWallet(caller.Account); err != nil {
			return fmt.Errorf("caller: %w", err)
		}
		if !positiveAmount(amount) {
			return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
		}
		if borrower == nil {
			return fmt.Errorf("%w: borrower is required", ErrInvalidInput)
		}

		tierID := e.st.userTiers[caller.Account]
		if tierID == 0 {
			return fmt.Errorf("account %s holds no tier: %w", caller.Account, ErrUnauthorizedFlashLoan)
		}
		tier := e.st.tierByID(tierID)
		if tier == nil || !tier.Enabled {
			return fmt.Errorf("tier %d disabled: %w", tierID, ErrUnauthorizedFlashLoan)
		}
		if e.st.loan != nil && e.st.loan.Active {
			return fmt.Errorf("borrower %s: %w", e.st.loan.Borrower, ErrFlashLoanActive)
		}

		facility, err := e.ledger.BalanceOf(ctx, e.params.AssetB, account.ReserveFacility)
		if err != nil {
			return err
		}
		if facility.Cmp(amount) < 0 {
			return fmt.Errorf("facility holds %s of requested %s: %w", facility, amount, ErrInsufficientBalance)
		}

		fee := new(big.Int).Mul(amount, big.NewInt(tier.FlashFeeBps))
		fee.Quo(fee, bpsScale)

		e.st.loan = &domain.FlashLoanRecord{
			Borrower: caller.Account,
			Amount:   cloneBig(amount),
			Fee:      cloneBig(fee),
			Active:   true,
		}
		// Cleared on every exit path; a failed operation additionally
		// restores the pre-call state.
		defer func() { e.st.loan = nil }()

		if err := e.push(ctx, e.params.AssetB, account.ReserveFacility, caller.Account, amount); err != nil {
			return err
		}
		baseline, err := e.ledger.BalanceOf(ctx, e.params.AssetB, account.ReserveFacility)
		if err != nil {
			return err
		}

		e.emit(domain.EventFlashLoanTaken, caller.Account, &domain.FlashLoanTakenPayload{
			Amount: cloneBig(amount),
			Fee:    cloneBig(fee),
		})

		if err := e.invokeBorrower(ctx, borrower, amount, fee, data); err != nil {
			return fmt.Errorf("flash borrower: %w", err)
		}

		after, err := e.ledger.BalanceOf(ctx, e.params.AssetB, account.ReserveFacility)
		if err != nil {
			return err
		}
		repaid := new(big.Int).Sub(after, baseline)
		owed := new(big.Int).Add(amount, fee)
		if repaid.Cmp(owed) < 0 {
			return fmt.Errorf("measured repayment %s of owed %s: %w", repaid, owed, ErrFlashLoanRepaymentFailed)
		}

		e.emit(domain.EventFlashLoanRepaid, caller.Account, &domain.FlashLoanRepaidPayload{
			Amount: cloneBig(amount),
			Fee:    cloneBig(fee),
			Repaid: repaid,
		})
		return nil
	})
}

// invokeBorrower runs the callback with the reentrancy flag set and turns
// a panic into an ordinary error so the operation unwinds.
func (e *Engine) invokeBorrower(ctx context.Context, borrower FlashBorrower, amount, fee *big.Int, data []byte) (err error) {
	e.inCallback.Store(true)
	defer e.inCallback.Store(false)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()
	return borrower.OnFlashLoan(ctx, cloneBig(amount), cloneBig(fee), data)
}
