package engine

import "errors"

// Engine operation errors. Pricing failures surface the amm package
// sentinels (amm.ErrInsufficientInputAmount, amm.ErrInsufficientLiquidity,
// amm.ErrInsufficientOutputAmount); authorization failures surface
// auth.ErrUnauthorized.
var (
	// ErrInvalidInput rejects malformed arguments before any mutation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientTokenAmount rejects a deposit supplying less asset B
	// than the pool ratio requires.
	ErrInsufficientTokenAmount = errors.New("insufficient token amount")

	// ErrUnbalancedLiquidityRatios rejects a deposit supplying more asset B
	// than the ratio tolerance band allows.
	ErrUnbalancedLiquidityRatios = errors.New("unbalanced liquidity ratios")

	// ErrSlippageExceeded rejects a swap breaching minOut or the
	// price-impact bound.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrInvalidInvariant rejects a swap whose post-trade reserve product
	// would be below the pre-trade product.
	ErrInvalidInvariant = errors.New("constant product invariant decreased")

	// ErrUnauthorizedFlashLoan rejects borrowers without a nonzero enabled
	// tier.
	ErrUnauthorizedFlashLoan = errors.New("unauthorized flash loan")

	// ErrFlashLoanActive rejects a flash loan while another is in flight.
	ErrFlashLoanActive = errors.New("flash loan already active")

	// ErrInsufficientBalance rejects a flash loan exceeding the facility
	// balance.
	ErrInsufficientBalance = errors.New("insufficient facility balance")

	// ErrFlashLoanRepaymentFailed rejects the operation when the measured
	// facility balance delta after the callback is below amount+fee.
	ErrFlashLoanRepaymentFailed = errors.New("flash loan repayment failed")

	ErrFarmPoolNotFound = errors.New("farm pool not found")
	ErrFarmPoolExists   = errors.New("farm pool already exists")
	ErrFarmPoolInactive = errors.New("farm pool inactive")
	ErrFarmPoolLimit    = errors.New("farm pool limit reached")

	// ErrInsufficientStake rejects unstaking more than the staked amount.
	ErrInsufficientStake = errors.New("insufficient stake")

	// ErrInsufficientRewardBalance rejects a claim the treasury cannot
	// cover.
	ErrInsufficientRewardBalance = errors.New("insufficient reward balance")

	// ErrEnginePaused rejects value-moving operations while paused.
	ErrEnginePaused = errors.New("engine paused")

	// ErrNotPaused rejects unpause and emergency withdrawal while running.
	ErrNotPaused = errors.New("engine not paused")

	// ErrReentrant rejects any entry-point call made while a flash loan
	// callback is executing.
	ErrReentrant = errors.New("reentrant call")

	// ErrInvalidTier rejects tier configurations breaking ID contiguity,
	// threshold ordering, or bps ranges.
	ErrInvalidTier = errors.New("invalid tier configuration")
)
