package engine

import (
	"context"
	"fmt"
	"math/big"

	"fundex/internal/account"
	"fundex/internal/amm"
	"fundex/internal/auth"
	"fundex/internal/domain"
)

// AddLiquidity deposits both assets and mints shares to the caller. The
// first deposit bootstraps the pool: shares = floor(sqrt(amountA*amountB)),
// of which the minimum floor is locked to the sentinel account forever.
// Follow-up deposits must match the pool ratio within the tolerance band;
// any overage of asset B inside the band is absorbed by the pool. Returns
// the shares credited to the caller.
func (e *Engine) AddLiquidity(ctx context.Context, caller auth.Caller, amountA, amountB *big.Int) (*big.Int, error) {
	var minted *big.Int
	err := e.execute(func() error {
		if e.st.pool.Paused {
			return ErrEnginePaused
		}
		if err := account.RequireWallet(caller.Account); err != nil {
			return fmt.Errorf("caller: %w", err)
		}
		if amountA == nil || amountA.Sign() < 0 || amountB == nil || amountB.Sign() < 0 {
			return fmt.Errorf("%w: amounts must be non-negative", ErrInvalidInput)
		}
		var err error
		if e.st.pool.TotalShares.Sign() == 0 {
			minted, err = e.bootstrapLiquidity(ctx, caller, amountA, amountB)
		} else {
			minted, err = e.addLiquidity(ctx, caller, amountA, amountB)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

func (e *Engine) bootstrapLiquidity(ctx context.Context, caller auth.Caller, amountA, amountB *big.Int) (*big.Int, error) {
	shares := amm.BootstrapShares(amountA, amountB)
	if shares.Cmp(e.params.MinimumFloor) <= 0 {
		return nil, fmt.Errorf("bootstrap shares %s at or below locked floor %s: %w",
			shares, e.params.MinimumFloor, amm.ErrInsufficientLiquidity)
	}
	if err := e.pull(ctx, e.params.AssetA, caller.Account, account.ReserveFacility, amountA); err != nil {
		return nil, err
	}
	if err := e.pull(ctx, e.params.AssetB, caller.Account, account.ReserveFacility, amountB); err != nil {
		return nil, err
	}

	pool := e.st.pool
	pool.ReserveA = cloneBig(amountA)
	pool.ReserveB = cloneBig(amountB)
	pool.TotalShares = shares

	floor := cloneBig(e.params.MinimumFloor)
	minted := new(big.Int).Sub(shares, floor)
	e.st.creditShares(account.LockedShares, floor)
	e.st.creditShares(caller.Account, minted)

	e.emit(domain.EventLiquidityAdded, caller.Account, &domain.LiquidityAddedPayload{
		AmountA:      cloneBig(amountA),
		AmountB:      cloneBig(amountB),
		SharesMinted: cloneBig(minted),
		ShareBalance: cloneBig(e.st.shareBalance(caller.Account)),
		Bootstrap:    true,
		FloorShares:  floor,
	})
	e.emitPoolState()
	e.reclassify(caller.Account, e.st.shareBalance(caller.Account))
	return minted, nil
}

func (e *Engine) addLiquidity(ctx context.Context, caller auth.Caller, amountA, amountB *big.Int) (*big.Int, error) {
	pool := e.st.pool
	requiredB := amm.RequiredB(amountA, pool.ReserveA, pool.ReserveB)
	if amountB.Cmp(requiredB) < 0 {
		return nil, fmt.Errorf("provided %s of required %s: %w", amountB, requiredB, ErrInsufficientTokenAmount)
	}
	limit := new(big.Int).Mul(requiredB, big.NewInt(10000+e.params.RatioToleranceBps))
	limit.Quo(limit, bpsScale)
	if amountB.Cmp(limit) > 0 {
		return nil, fmt.Errorf("provided %s above tolerance limit %s: %w", amountB, limit, ErrUnbalancedLiquidityRatios)
	}
	minted := amm.ProportionalShares(amountA, pool.TotalShares, pool.ReserveA)
	if minted.Sign() == 0 {
		return nil, fmt.Errorf("deposit mints no shares: %w", amm.ErrInsufficientLiquidity)
	}

	if err := e.pull(ctx, e.params.AssetA, caller.Account, account.ReserveFacility, amountA); err != nil {
		return nil, err
	}
	if err := e.pull(ctx, e.params.AssetB, caller.Account, account.ReserveFacility, amountB); err != nil {
		return nil, err
	}

	pool.ReserveA.Add(pool.ReserveA, amountA)
	pool.ReserveB.Add(pool.ReserveB, amountB)
	pool.TotalShares.Add(pool.TotalShares, minted)
	e.st.creditShares(caller.Account, minted)

	e.emit(domain.EventLiquidityAdded, caller.Account, &domain.LiquidityAddedPayload{
		AmountA:      cloneBig(amountA),
		AmountB:      cloneBig(amountB),
		SharesMinted: cloneBig(minted),
		ShareBalance: cloneBig(e.st.shareBalance(caller.Account)),
	})
	e.emitPoolState()
	e.reclassify(caller.Account, e.st.shareBalance(caller.Account))
	return minted, nil
}

// RemoveLiquidity burns the caller's shares and pays out both assets
// proportionally. Shares are burned and reserves decremented strictly
// before either asset leaves the facility. Returns the redeemed amounts.
func (e *Engine) RemoveLiquidity(ctx context.Context, caller auth.Caller, shares *big.Int) (*big.Int, *big.Int, error) {
	var amountA, amountB *big.Int
	err := e.execute(func() error {
		if e.st.pool.Paused {
			return ErrEnginePaused
		}
		if err := account.RequireWallet(caller.Account); err != nil {
			return fmt.Errorf("caller: %w", err)
		}
		if shares == nil || shares.Sign() < 0 {
			return fmt.Errorf("%w: shares must be non-negative", ErrInvalidInput)
		}
		balance := e.st.shareBalance(caller.Account)
		if shares.Sign() == 0 || shares.Cmp(balance) > 0 {
			return fmt.Errorf("redeeming %s of %s held: %w", shares, balance, amm.ErrInsufficientLiquidity)
		}

		pool := e.st.pool
		amountA, amountB = amm.WithdrawalAmounts(shares, pool.ReserveA, pool.ReserveB, pool.TotalShares)

		e.st.debitShares(caller.Account, shares)
		pool.TotalShares.Sub(pool.TotalShares, shares)
		pool.ReserveA.Sub(pool.ReserveA, amountA)
		pool.ReserveB.Sub(pool.ReserveB, amountB)

		if err := e.push(ctx, e.params.AssetA, account.ReserveFacility, caller.Account, amountA); err != nil {
			return err
		}
		if err := e.push(ctx, e.params.AssetB, account.ReserveFacility, caller.Account, amountB); err != nil {
			return err
		}

		e.emit(domain.EventLiquidityRemoved, caller.Account, &domain.LiquidityRemovedPayload{
			Shares:       cloneBig(shares),
			AmountA:      cloneBig(amountA),
			AmountB:      cloneBig(amountB),
			ShareBalance: cloneBig(e.st.shareBalance(caller.Account)),
		})
		e.emitPoolState()
		e.reclassify(caller.Account, e.st.shareBalance(caller.Account))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}
