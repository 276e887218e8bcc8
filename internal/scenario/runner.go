package scenario

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"fundex/internal/account"
	"fundex/internal/amm"
	"fundex/internal/assets"
	"fundex/internal/auth"
	"fundex/internal/domain"
	"fundex/internal/engine"
	"fundex/internal/events"
)

// Expectations maps step expect keywords onto engine sentinels. A step
// using one of these keywords passes only when its error matches.
var Expectations = map[string]error{
	"invalid_input":       engine.ErrInvalidInput,
	"invalid_tier":        engine.ErrInvalidTier,
	"unauthorized":        auth.ErrUnauthorized,
	"paused":              engine.ErrEnginePaused,
	"not_paused":          engine.ErrNotPaused,
	"slippage_exceeded":   engine.ErrSlippageExceeded,
	"unbalanced_ratio":    engine.ErrUnbalancedLiquidityRatios,
	"insufficient_tokens": engine.ErrInsufficientTokenAmount,
	"insufficient_output": amm.ErrInsufficientOutputAmount,
	"insufficient_funds":  assets.ErrInsufficientFunds,
	"insufficient_stake":  engine.ErrInsufficientStake,
	"reward_budget":       engine.ErrInsufficientRewardBalance,
	"repayment_failed":    engine.ErrFlashLoanRepaymentFailed,
	"flash_unauthorized":  engine.ErrUnauthorizedFlashLoan,
	"reentrant":           engine.ErrReentrant,
	"pool_not_found":      engine.ErrFarmPoolNotFound,
	"pool_exists":         engine.ErrFarmPoolExists,
	"pool_inactive":       engine.ErrFarmPoolInactive,
}

// baseUnix anchors the simulated clock so journals and results are
// reproducible run to run.
const baseUnix int64 = 1_700_000_000

type simClock struct{ now int64 }

func (c *simClock) Now() int64 { return c.now }

// StepResult records one executed step.
type StepResult struct {
	Index   int    `json:"index"`
	At      int64  `json:"at"`
	Op      string `json:"op"`
	Account string `json:"account,omitempty"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Expect  string `json:"expect,omitempty"`
	Pass    bool   `json:"pass"`
}

// Result is the full outcome of one scenario run. Failed counts steps
// whose outcome contradicted their expect field.
type Result struct {
	Name     string                       `json:"name"`
	Steps    []StepResult                 `json:"steps"`
	Failed   int                          `json:"failed"`
	Events   int                          `json:"events"`
	Final    *domain.Snapshot             `json:"final"`
	Balances map[string]map[string]string `json:"balances"`
}

// Runner executes scenarios, each against a fresh engine and bank.
type Runner struct {
	log *zap.Logger
}

// NewRunner creates a scenario runner. A nil logger discards log output.
func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log}
}

var maxAllowance = new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)

// Run executes the scenario.
// Steps:
//  1. Validate the scenario shape
//  2. Build engine params from the overrides
//  3. Generate wallets, mint balances and allowances, fund the treasury
//  4. Execute each step at its simulated time, judging expectations
//  5. Render the final snapshot and account balances
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	params := engine.DefaultParams()
	if p := sc.Params; p != nil {
		if p.AssetA != "" {
			params.AssetA = assets.Asset(p.AssetA)
		}
		if p.AssetB != "" {
			params.AssetB = assets.Asset(p.AssetB)
		}
		if p.MinimumFloor > 0 {
			params.MinimumFloor = big.NewInt(p.MinimumFloor)
		}
		if p.RatioToleranceBps > 0 {
			params.RatioToleranceBps = p.RatioToleranceBps
		}
		if p.MaxSlippageBps > 0 {
			params.MaxSlippageBps = p.MaxSlippageBps
		}
		if p.MaxFarmPools > 0 {
			params.MaxFarmPools = p.MaxFarmPools
		}
	}

	bank := assets.NewBank()
	clock := &simClock{now: baseUnix}
	committed := 0
	sink := events.SinkFunc(func(batch []*domain.Event) { committed += len(batch) })

	eng, err := engine.New(params, bank, sink, engine.WithClock(clock.Now))
	if err != nil {
		return nil, err
	}

	actors, err := setup(ctx, sc, bank)
	if err != nil {
		return nil, err
	}

	res := &Result{Name: sc.Name, Steps: make([]StepResult, 0, len(sc.Steps))}
	for i, st := range sc.Steps {
		clock.now = baseUnix + st.At

		detail, opErr := r.runStep(ctx, eng, bank, params, actors, st)
		sr := StepResult{
			Index:   i,
			At:      st.At,
			Op:      st.Op,
			Account: st.Account,
			Outcome: "ok",
			Detail:  detail,
			Expect:  st.Expect,
			Pass:    pass(st.Expect, opErr),
		}
		if opErr != nil {
			sr.Outcome = "error"
			sr.Error = opErr.Error()
		}
		if !sr.Pass {
			res.Failed++
			r.log.Warn("step outcome contradicts expectation",
				zap.Int("step", i),
				zap.String("op", st.Op),
				zap.String("expect", st.Expect),
				zap.NamedError("err", opErr))
		}
		res.Steps = append(res.Steps, sr)
	}

	snap, err := eng.Snapshot()
	if err != nil {
		return nil, err
	}
	res.Final = snap
	res.Events = committed

	res.Balances = make(map[string]map[string]string, len(actors))
	for name, caller := range actors {
		byAsset := make(map[string]string, 2)
		for _, asset := range []assets.Asset{params.AssetA, params.AssetB} {
			bal, err := bank.BalanceOf(ctx, asset, caller.Account)
			if err != nil {
				return nil, err
			}
			byAsset[string(asset)] = bal.String()
		}
		res.Balances[name] = byAsset
	}
	return res, nil
}

// setup generates a wallet per declared account, mints its balances,
// grants the engine accounts pull allowances and funds the farm treasury.
func setup(ctx context.Context, sc *Scenario, bank *assets.Bank) (map[string]auth.Caller, error) {
	actors := make(map[string]auth.Caller, len(sc.Accounts))
	for _, a := range sc.Accounts {
		addr, err := newWalletAddress()
		if err != nil {
			return nil, err
		}
		var caps []auth.Capability
		for _, c := range a.Capabilities {
			switch c {
			case "admin":
				caps = append(caps, auth.CapAdmin)
			case "ledger":
				caps = append(caps, auth.CapLedger)
			}
		}
		actors[a.Name] = auth.NewCaller(addr, caps...)

		for asset, amount := range a.Balances {
			v, err := parseAmount("balance", amount)
			if err != nil {
				return nil, fmt.Errorf("account %q: %w", a.Name, err)
			}
			if err := bank.Mint(ctx, assets.Asset(asset), addr, v); err != nil {
				return nil, fmt.Errorf("account %q: %w", a.Name, err)
			}
			for _, engineAcct := range []string{account.ReserveFacility, account.FarmTreasury} {
				if err := bank.Approve(ctx, assets.Asset(asset), addr, engineAcct, maxAllowance); err != nil {
					return nil, fmt.Errorf("account %q: %w", a.Name, err)
				}
			}
		}
	}

	for asset, amount := range sc.Treasury {
		v, err := parseAmount("treasury", amount)
		if err != nil {
			return nil, err
		}
		if err := bank.Mint(ctx, assets.Asset(asset), account.FarmTreasury, v); err != nil {
			return nil, fmt.Errorf("treasury: %w", err)
		}
	}
	return actors, nil
}

func (r *Runner) runStep(ctx context.Context, eng *engine.Engine, bank *assets.Bank, params engine.Params, actors map[string]auth.Caller, st Step) (string, error) {
	caller := resolve(actors, st.Account)

	switch st.Op {
	case OpAddLiquidity:
		amountA, err := parseAmount("amount_a", st.AmountA)
		if err != nil {
			return "", err
		}
		amountB, err := parseAmount("amount_b", st.AmountB)
		if err != nil {
			return "", err
		}
		minted, err := eng.AddLiquidity(ctx, caller, amountA, amountB)
		if err != nil {
			return "", err
		}
		return "minted " + minted.String(), nil

	case OpRemoveLiquidity:
		shares, err := parseAmount("shares", st.Shares)
		if err != nil {
			return "", err
		}
		amountA, amountB, err := eng.RemoveLiquidity(ctx, caller, shares)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("returned %s/%s", amountA, amountB), nil

	case OpSwapAForB, OpSwapBForA:
		amountIn, err := parseAmount("amount_in", st.AmountIn)
		if err != nil {
			return "", err
		}
		minOut, err := parseOptionalAmount("min_out", st.MinOut)
		if err != nil {
			return "", err
		}
		swap := eng.SwapAForB
		if st.Op == OpSwapBForA {
			swap = eng.SwapBForA
		}
		out, err := swap(ctx, caller, amountIn, minOut)
		if err != nil {
			return "", err
		}
		return "out " + out.String(), nil

	case OpStake:
		amount, err := parseAmount("amount", st.Amount)
		if err != nil {
			return "", err
		}
		return "", eng.Stake(ctx, caller, st.Pool, amount)

	case OpUnstake:
		amount, err := parseAmount("amount", st.Amount)
		if err != nil {
			return "", err
		}
		return "", eng.Unstake(ctx, caller, st.Pool, amount)

	case OpClaimRewards:
		paid, err := eng.ClaimRewards(ctx, caller, st.Pool)
		if err != nil {
			return "", err
		}
		return "paid " + paid.String(), nil

	case OpFlashLoan:
		amount, err := parseAmount("amount", st.Amount)
		if err != nil {
			return "", err
		}
		repay, err := parseOptionalAmount("repay_amount", st.RepayAmount)
		if err != nil {
			return "", err
		}
		borrower := &scriptedBorrower{
			bank:     bank,
			engine:   eng,
			asset:    params.AssetB,
			caller:   caller,
			behavior: st.Behavior,
			repay:    repay,
		}
		return "", eng.FlashLoan(ctx, caller, amount, nil, borrower)

	case OpConfigureTier:
		if st.Tier == nil {
			return "", fmt.Errorf("configure_tier: tier is required")
		}
		min, err := parseAmount("min_contribution", st.Tier.MinContribution)
		if err != nil {
			return "", err
		}
		tier := &domain.Tier{
			ID:                  st.Tier.ID,
			MinContribution:     min,
			RewardMultiplierBps: st.Tier.RewardMultiplierBps,
			FlashFeeBps:         st.Tier.FlashFeeBps,
			Enabled:             st.Tier.Enabled,
		}
		return "", eng.ConfigureTier(ctx, caller, tier)

	case OpUpdateTier, OpTierOverride:
		contribution, err := parseAmount("contribution", st.Contribution)
		if err != nil {
			return "", err
		}
		target := resolve(actors, st.Target).Account
		if st.Op == OpUpdateTier {
			return "", eng.UpdateTier(ctx, caller, target, contribution)
		}
		return "", eng.ManualUpdateTier(ctx, caller, target, contribution)

	case OpCreateFarmPool:
		rate, err := parseAmount("rate", st.Rate)
		if err != nil {
			return "", err
		}
		return "", eng.CreateFarmPool(ctx, caller, st.Pool, rate)

	case OpSetFarmPoolActive:
		if st.Active == nil {
			return "", fmt.Errorf("set_farm_pool_active: active is required")
		}
		return "", eng.SetFarmPoolActive(ctx, caller, st.Pool, *st.Active)

	case OpSetMaxSlippage:
		return "", eng.SetMaxSlippage(ctx, caller, st.Bps)

	case OpPause:
		return "", eng.Pause(ctx, caller)

	case OpUnpause:
		return "", eng.Unpause(ctx, caller)

	case OpEmergencyWithdraw:
		return "", eng.EmergencyWithdraw(ctx, caller)

	default:
		return "", fmt.Errorf("unknown op %q", st.Op)
	}
}

// resolve returns the declared actor, or a bare caller when the reference
// is a literal address.
func resolve(actors map[string]auth.Caller, ref string) auth.Caller {
	if caller, ok := actors[ref]; ok {
		return caller
	}
	return auth.NewCaller(ref)
}

// pass judges one outcome against the step's expect field.
func pass(expect string, err error) bool {
	switch expect {
	case "", "ok":
		return err == nil
	case "error":
		return err != nil
	default:
		return err != nil && errors.Is(err, Expectations[expect])
	}
}

func newWalletAddress() (string, error) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		return "", fmt.Errorf("generate wallet: %w", err)
	}
	return base58.Encode(pub), nil
}

func parseAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: %q is not a decimal integer", field, s)
	}
	return v, nil
}

func parseOptionalAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return parseAmount(field, s)
}
