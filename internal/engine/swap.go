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

// SwapAForB trades amountIn of asset A for asset B at the constant-product
// price. Both the caller's minOut and the configured price-impact bound
// are enforced; breaching either fails ErrSlippageExceeded. Returns the
// output amount.
func (e *Engine) SwapAForB(ctx context.Context, caller auth.Caller, amountIn, minOut *big.Int) (*big.Int, error) {
	return e.swap(ctx, caller, amountIn, minOut, true)
}

// SwapBForA trades amountIn of asset B for asset A. See SwapAForB.
func (e *Engine) SwapBForA(ctx context.Context, caller auth.Caller, amountIn, minOut *big.Int) (*big.Int, error) {
	return e.swap(ctx, caller, amountIn, minOut, false)
}

func (e *Engine) swap(ctx context.Context, caller auth.Caller, amountIn, minOut *big.Int, aForB bool) (*big.Int, error) {
	var out *big.Int
	err := e.execute(func() error {
		if e.st.pool.Paused {
			return ErrEnginePaused
		}
		if err := account.RequireWallet(caller.Account); err != nil {
			return fmt.Errorf("caller: %w", err)
		}
		if minOut != nil && minOut.Sign() < 0 {
			return fmt.Errorf("%w: minOut must be non-negative", ErrInvalidInput)
		}

		pool := e.st.pool
		assetIn, assetOut := e.params.AssetA, e.params.AssetB
		inRes, outRes := pool.ReserveA, pool.ReserveB
		if !aForB {
			assetIn, assetOut = e.params.AssetB, e.params.AssetA
			inRes, outRes = pool.ReserveB, pool.ReserveA
		}

		var err error
		out, err = amm.OutputAmount(amountIn, inRes, outRes)
		if err != nil {
			return err
		}
		if minOut != nil && out.Cmp(minOut) < 0 {
			return fmt.Errorf("output %s below minimum %s: %w", out, minOut, ErrSlippageExceeded)
		}
		impact, err := amm.ImpactBps(amountIn, out, inRes, outRes)
		if err != nil {
			return err
		}
		if impact.Cmp(big.NewInt(pool.MaxSlippageBps)) > 0 {
			return fmt.Errorf("price impact %s bps above bound %d: %w", impact, pool.MaxSlippageBps, ErrSlippageExceeded)
		}

		preProduct := new(big.Int).Mul(pool.ReserveA, pool.ReserveB)
		inRes.Add(inRes, amountIn)
		outRes.Sub(outRes, out)
		postProduct := new(big.Int).Mul(pool.ReserveA, pool.ReserveB)
		if postProduct.Cmp(preProduct) < 0 {
			return fmt.Errorf("product %s fell below %s: %w", postProduct, preProduct, ErrInvalidInvariant)
		}

		if err := e.pull(ctx, assetIn, caller.Account, account.ReserveFacility, amountIn); err != nil {
			return err
		}
		if err := e.push(ctx, assetOut, account.ReserveFacility, caller.Account, out); err != nil {
			return err
		}

		e.emit(domain.EventSwapExecuted, caller.Account, &domain.SwapExecutedPayload{
			AssetIn:   string(assetIn),
			AssetOut:  string(assetOut),
			AmountIn:  cloneBig(amountIn),
			AmountOut: cloneBig(out),
			ImpactBps: impact.Int64(),
		})
		e.emitPoolState()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
