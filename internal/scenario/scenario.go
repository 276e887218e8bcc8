// Package scenario runs scripted operation sequences against a fresh
// engine and bank on a simulated clock. The fundexd simulate command is a
// thin shell around it; tests use it for adversarial sequences that are
// awkward to express inline.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"

	"fundex/internal/account"
)

// Operation names accepted in scenario steps.
const (
	OpAddLiquidity      = "add_liquidity"
	OpRemoveLiquidity   = "remove_liquidity"
	OpSwapAForB         = "swap_a_for_b"
	OpSwapBForA         = "swap_b_for_a"
	OpStake             = "stake"
	OpUnstake           = "unstake"
	OpClaimRewards      = "claim_rewards"
	OpFlashLoan         = "flash_loan"
	OpConfigureTier     = "configure_tier"
	OpUpdateTier        = "update_tier"
	OpTierOverride      = "tier_override"
	OpCreateFarmPool    = "create_farm_pool"
	OpSetFarmPoolActive = "set_farm_pool_active"
	OpSetMaxSlippage    = "set_max_slippage"
	OpPause             = "pause"
	OpUnpause           = "unpause"
	OpEmergencyWithdraw = "emergency_withdraw"
)

var knownOps = map[string]bool{
	OpAddLiquidity:      true,
	OpRemoveLiquidity:   true,
	OpSwapAForB:         true,
	OpSwapBForA:         true,
	OpStake:             true,
	OpUnstake:           true,
	OpClaimRewards:      true,
	OpFlashLoan:         true,
	OpConfigureTier:     true,
	OpUpdateTier:        true,
	OpTierOverride:      true,
	OpCreateFarmPool:    true,
	OpSetFarmPoolActive: true,
	OpSetMaxSlippage:    true,
	OpPause:             true,
	OpUnpause:           true,
	OpEmergencyWithdraw: true,
}

// Scenario is one scripted run: accounts with starting balances, optional
// engine parameter overrides, an optional farm treasury budget, and timed
// steps. Amounts are decimal strings in base units.
type Scenario struct {
	Name     string            `json:"name"`
	Params   *Params           `json:"params,omitempty"`
	Accounts []Account         `json:"accounts"`
	Treasury map[string]string `json:"treasury,omitempty"`
	Steps    []Step            `json:"steps"`
}

// Params overrides engine parameters. Zero fields keep the engine
// defaults.
type Params struct {
	AssetA            string `json:"asset_a,omitempty"`
	AssetB            string `json:"asset_b,omitempty"`
	MinimumFloor      int64  `json:"minimum_floor,omitempty"`
	RatioToleranceBps int64  `json:"ratio_tolerance_bps,omitempty"`
	MaxSlippageBps    int64  `json:"max_slippage_bps,omitempty"`
	MaxFarmPools      int    `json:"max_farm_pools,omitempty"`
}

// Account declares a named wallet. The runner generates a fresh address
// per name, mints the listed balances and grants the engine accounts an
// unbounded pull allowance; the scenario controls spending through its
// steps.
type Account struct {
	Name         string            `json:"name"`
	Balances     map[string]string `json:"balances,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
}

// Step is one timed operation. At is seconds since scenario start and must
// be non-decreasing across steps. Expect is "" or "ok" for success,
// "error" for any failure, or one of the error keywords in Expectations.
type Step struct {
	At      int64  `json:"at"`
	Account string `json:"account,omitempty"`
	Op      string `json:"op"`
	Expect  string `json:"expect,omitempty"`

	AmountA      string    `json:"amount_a,omitempty"`
	AmountB      string    `json:"amount_b,omitempty"`
	AmountIn     string    `json:"amount_in,omitempty"`
	MinOut       string    `json:"min_out,omitempty"`
	Shares       string    `json:"shares,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	Pool         string    `json:"pool,omitempty"`
	Rate         string    `json:"rate,omitempty"`
	Target       string    `json:"target,omitempty"`
	Contribution string    `json:"contribution,omitempty"`
	Tier         *TierSpec `json:"tier,omitempty"`
	Bps          int64     `json:"bps,omitempty"`
	Active       *bool     `json:"active,omitempty"`
	Behavior     string    `json:"behavior,omitempty"`
	RepayAmount  string    `json:"repay_amount,omitempty"`
}

// TierSpec is the configure_tier argument.
type TierSpec struct {
	ID                  int    `json:"id"`
	MinContribution     string `json:"min_contribution"`
	RewardMultiplierBps int64  `json:"reward_multiplier_bps"`
	FlashFeeBps         int64  `json:"flash_fee_bps"`
	Enabled             bool   `json:"enabled"`
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Validate checks the static shape of the scenario: account names unique,
// capabilities and operations known, step times ordered, referenced
// accounts resolvable.
func (sc *Scenario) Validate() error {
	names := make(map[string]bool, len(sc.Accounts))
	for i, a := range sc.Accounts {
		if a.Name == "" {
			return fmt.Errorf("account %d: name is required", i)
		}
		if names[a.Name] {
			return fmt.Errorf("account %q declared twice", a.Name)
		}
		names[a.Name] = true
		for _, c := range a.Capabilities {
			if c != "admin" && c != "ledger" {
				return fmt.Errorf("account %q: unknown capability %q", a.Name, c)
			}
		}
	}

	var prev int64
	for i, st := range sc.Steps {
		if !knownOps[st.Op] {
			return fmt.Errorf("step %d: unknown op %q", i, st.Op)
		}
		if st.At < prev {
			return fmt.Errorf("step %d: at %d precedes step %d", i, st.At, i-1)
		}
		prev = st.At
		if st.Expect != "" && st.Expect != "ok" && st.Expect != "error" {
			if _, ok := Expectations[st.Expect]; !ok {
				return fmt.Errorf("step %d: unknown expect %q", i, st.Expect)
			}
		}
		if st.Account == "" {
			return fmt.Errorf("step %d: account is required", i)
		}
		if err := resolvable(names, st.Account); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if st.Target != "" {
			if err := resolvable(names, st.Target); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
	}
	return nil
}

// resolvable accepts a declared account name or a literal address.
func resolvable(names map[string]bool, ref string) error {
	if names[ref] {
		return nil
	}
	if err := account.Validate(ref); err != nil {
		return fmt.Errorf("account %q is neither declared nor a valid address", ref)
	}
	return nil
}
