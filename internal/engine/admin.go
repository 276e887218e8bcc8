package engine

import (
	"context"
	"fmt"
	"math/big"

	"fundex/internal/account"
	"fundex/internal/auth"
	"fundex/internal/domain"
)

// SetMaxSlippage reconfigures the price-impact bound. Allowed while
// paused.
func (e *Engine) SetMaxSlippage(ctx context.Context, caller auth.Caller, bps int64) error {
	return e.execute(func() error {
		if err := caller.Require(auth.CapAdmin); err != nil {
			return err
		}
		if bps < 0 || bps > 10000 {
			return fmt.Errorf("%w: slippage bound must be within [0, 10000] bps", ErrInvalidInput)
		}
		old := e.st.pool.MaxSlippageBps
		e.st.pool.MaxSlippageBps = bps
		e.emit(domain.EventMaxSlippageUpdated, caller.Account, &domain.MaxSlippageUpdatedPayload{OldBps: old, NewBps: bps})
		e.emitPoolState()
		return nil
	})
}

// Pause freezes every value-moving operation. Administrative
// configuration stays available.
func (e *Engine) Pause(ctx context.Context, caller auth.Caller) error {
	return e.execute(func() error {
		if err := caller.Require(auth.CapAdmin); err != nil {
			return err
		}
		if e.st.pool.Paused {
			return ErrEnginePaused
		}
		e.st.pool.Paused = true
		e.emit(domain.EventPaused, caller.Account, nil)
		e.emitPoolState()
		return nil
	})
}

// Unpause resumes value-moving operations.
func (e *Engine) Unpause(ctx context.Context, caller auth.Caller) error {
	return e.execute(func() error {
		if err := caller.Require(auth.CapAdmin); err != nil {
			return err
		}
		if !e.st.pool.Paused {
			return ErrNotPaused
		}
		e.st.pool.Paused = false
		e.emit(domain.EventUnpaused, caller.Account, nil)
		e.emitPoolState()
		return nil
	})
}

// EmergencyWithdraw sweeps both facility reserves and the farm treasury's
// asset B balance to the caller and zeroes reserves and total shares.
// Break-glass fund recovery: it deliberately breaks the share-sum
// invariant and is only available while paused.
func (e *Engine) EmergencyWithdraw(ctx context.Context, caller auth.Caller) error {
	return e.execute(func() error {
		if err := caller.Require(auth.CapAdmin); err != nil {
			return err
		}
		if err := account.RequireWallet(caller.Account); err != nil {
			return fmt.Errorf("caller: %w", err)
		}
		if !e.st.pool.Paused {
			return ErrNotPaused
		}

		balA, err := e.ledger.BalanceOf(ctx, e.params.AssetA, account.ReserveFacility)
		if err != nil {
			return err
		}
		balB, err := e.ledger.BalanceOf(ctx, e.params.AssetB, account.ReserveFacility)
		if err != nil {
			return err
		}
		treasuryB, err := e.ledger.BalanceOf(ctx, e.params.AssetB, account.FarmTreasury)
		if err != nil {
			return err
		}

		// Bookkeeping is zeroed before anything leaves the engine accounts.
		pool := e.st.pool
		pool.ReserveA = new(big.Int)
		pool.ReserveB = new(big.Int)
		pool.TotalShares = new(big.Int)

		if err := e.push(ctx, e.params.AssetA, account.ReserveFacility, caller.Account, balA); err != nil {
			return err
		}
		if err := e.push(ctx, e.params.AssetB, account.ReserveFacility, caller.Account, balB); err != nil {
			return err
		}
		if err := e.push(ctx, e.params.AssetB, account.FarmTreasury, caller.Account, treasuryB); err != nil {
			return err
		}

		e.emit(domain.EventEmergencyWithdrawal, caller.Account, &domain.EmergencyWithdrawalPayload{
			Recipient: caller.Account,
			AmountA:   balA,
			AmountB:   balB,
			TreasuryB: treasuryB,
		})
		e.emitPoolState()
		return nil
	})
}
