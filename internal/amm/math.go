// Package amm implements the constant-product pricing math of the exchange
// engine. All functions are pure, operate on arbitrary-precision integers,
// and use truncating division throughout, rounding in the pool's favor.
package amm

import (
	"errors"
	"math/big"
)

// Precision is the fixed-point scaling constant shared by the exchange rate
// view and the farming accrual arithmetic.
var Precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)

// Swap fee: 0.3% of the constant-product output, retained by the pool.
var (
	feeNumerator   = big.NewInt(3)
	feeDenominator = big.NewInt(1000)
)

var bpsScale = big.NewInt(10000)

// Pricing errors
var (
	ErrInsufficientInputAmount  = errors.New("insufficient input amount")
	ErrInsufficientLiquidity    = errors.New("insufficient liquidity")
	ErrInsufficientOutputAmount = errors.New("insufficient output amount")
)

// OutputAmount quotes a swap against the given reserves:
//
//	withoutFee = in * outputReserve / (inputReserve + in)
//	fee        = withoutFee * 3 / 1000
//	out        = withoutFee - fee
//
// It fails with ErrInsufficientInputAmount on non-positive input,
// ErrInsufficientLiquidity if either reserve is empty, and
// ErrInsufficientOutputAmount if the quote truncates to zero.
func OutputAmount(inputAmount, inputReserve, outputReserve *big.Int) (*big.Int, error) {
	if !positive(inputAmount) {
		return nil, ErrInsufficientInputAmount
	}
	if !positive(inputReserve) || !positive(outputReserve) {
		return nil, ErrInsufficientLiquidity
	}
	withoutFee := new(big.Int).Mul(inputAmount, outputReserve)
	withoutFee.Quo(withoutFee, new(big.Int).Add(inputReserve, inputAmount))
	fee := new(big.Int).Mul(withoutFee, feeNumerator)
	fee.Quo(fee, feeDenominator)
	out := withoutFee.Sub(withoutFee, fee)
	if out.Sign() == 0 {
		return nil, ErrInsufficientOutputAmount
	}
	return out, nil
}

// ImpactBps measures the price impact of an executed quote in basis points
// against the pre-swap reserves:
//
//	expected  = outputReserve * Precision / inputReserve
//	execution = out * Precision / in
//	impact    = |expected - execution| * 10000 / expected
//
// The expected rate truncates to zero when outputReserve*Precision <
// inputReserve; such a pool is unquotable at this precision and the call
// fails with ErrInsufficientLiquidity.
func ImpactBps(amountIn, amountOut, inputReserve, outputReserve *big.Int) (*big.Int, error) {
	if !positive(amountIn) {
		return nil, ErrInsufficientInputAmount
	}
	if !positive(inputReserve) || !positive(outputReserve) {
		return nil, ErrInsufficientLiquidity
	}
	expected := new(big.Int).Mul(outputReserve, Precision)
	expected.Quo(expected, inputReserve)
	if expected.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	execution := new(big.Int).Mul(amountOut, Precision)
	execution.Quo(execution, amountIn)
	impact := new(big.Int).Sub(expected, execution)
	impact.Abs(impact)
	impact.Mul(impact, bpsScale)
	return impact.Quo(impact, expected), nil
}

// ExchangeRate returns reserveB * Precision / reserveA, the pool's quoted
// B-per-A rate scaled by Precision. Fails with ErrInsufficientLiquidity if
// either reserve is empty.
func ExchangeRate(reserveA, reserveB *big.Int) (*big.Int, error) {
	if !positive(reserveA) || !positive(reserveB) {
		return nil, ErrInsufficientLiquidity
	}
	rate := new(big.Int).Mul(reserveB, Precision)
	return rate.Quo(rate, reserveA), nil
}

// BootstrapShares returns floor(sqrt(amountA*amountB)), the share issue of
// the first deposit. Amounts must be non-negative.
func BootstrapShares(amountA, amountB *big.Int) *big.Int {
	product := new(big.Int).Mul(amountA, amountB)
	return product.Sqrt(product)
}

// ProportionalShares returns amountA * totalShares / reserveA, the share
// issue of a follow-up deposit. reserveA must be positive.
func ProportionalShares(amountA, totalShares, reserveA *big.Int) *big.Int {
	shares := new(big.Int).Mul(amountA, totalShares)
	return shares.Quo(shares, reserveA)
}

// RequiredB returns amountA * reserveB / reserveA, the asset B amount that
// matches amountA at the current pool ratio. reserveA must be positive.
func RequiredB(amountA, reserveA, reserveB *big.Int) *big.Int {
	required := new(big.Int).Mul(amountA, reserveB)
	return required.Quo(required, reserveA)
}

// WithdrawalAmounts returns (shares*reserveA/totalShares,
// shares*reserveB/totalShares), the redemption of a share burn.
// totalShares must be positive.
func WithdrawalAmounts(shares, reserveA, reserveB, totalShares *big.Int) (*big.Int, *big.Int) {
	amountA := new(big.Int).Mul(shares, reserveA)
	amountA.Quo(amountA, totalShares)
	amountB := new(big.Int).Mul(shares, reserveB)
	amountB.Quo(amountB, totalShares)
	return amountA, amountB
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
