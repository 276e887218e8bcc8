package domain

import "math/big"

// PoolState represents the exchange engine's singleton aggregate state.
// Corresponds to the reserve_pool table in PostgreSQL (single row).
type PoolState struct {
	AssetA         string   // reserve asset A symbol
	AssetB         string   // reserve asset B symbol
	ReserveA       *big.Int // asset A reserve, base units
	ReserveB       *big.Int // asset B reserve, base units
	TotalShares    *big.Int // outstanding liquidity shares, incl. locked floor
	MaxSlippageBps int64    // price-impact bound, basis points
	Paused         bool     // value-moving operations frozen
}

// Clone returns a deep copy safe to retain across engine mutations.
func (p *PoolState) Clone() *PoolState {
	if p == nil {
		return nil
	}
	cp := *p
	cp.ReserveA = cloneBig(p.ReserveA)
	cp.ReserveB = cloneBig(p.ReserveB)
	cp.TotalShares = cloneBig(p.TotalShares)
	return &cp
}

// ShareBalance represents one account's liquidity share balance.
// Corresponds to the share_balances table in PostgreSQL.
type ShareBalance struct {
	Account string   // base58 address, sentinel included
	Shares  *big.Int // never negative
}

// Clone returns a deep copy.
func (s *ShareBalance) Clone() *ShareBalance {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Shares = cloneBig(s.Shares)
	return &cp
}

// Tier represents one eligibility tier of the incentive layer.
// Corresponds to the tiers table in PostgreSQL.
// Tiers are ordered ascending by MinContribution, IDs contiguous from 1;
// never deleted, only disabled.
type Tier struct {
	ID                  int      // 1..n, ascending with threshold
	MinContribution     *big.Int // share balance required, base units
	RewardMultiplierBps int64    // farming reward multiplier, basis points
	FlashFeeBps         int64    // flash loan fee, basis points
	Enabled             bool
}

// Clone returns a deep copy.
func (t *Tier) Clone() *Tier {
	if t == nil {
		return nil
	}
	cp := *t
	cp.MinContribution = cloneBig(t.MinContribution)
	return &cp
}

// UserTier represents an account's current tier assignment.
// Corresponds to the user_tiers table in PostgreSQL. Tier 0 = ineligible.
type UserTier struct {
	Account string
	Tier    int
}

// FlashLoanRecord represents an in-flight flash loan. Ephemeral: it exists
// only while a flash loan operation is executing and is cleared on every
// exit path. Never persisted.
type FlashLoanRecord struct {
	Borrower string   // borrowing account
	Amount   *big.Int // principal, base units of asset B
	Fee      *big.Int // owed on top of principal
	Active   bool
}

// Clone returns a deep copy.
func (f *FlashLoanRecord) Clone() *FlashLoanRecord {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Amount = cloneBig(f.Amount)
	cp.Fee = cloneBig(f.Fee)
	return &cp
}

// FarmPool represents one yield farming pool.
// Corresponds to the farm_pools table in PostgreSQL.
type FarmPool struct {
	ID                       string
	TotalStaked              *big.Int // base units of asset B
	RewardRatePerSecond      *big.Int // reward units emitted per second
	LastUpdateUnix           int64    // last accrual timestamp
	CumulativeRewardPerShare *big.Int // Precision-scaled, monotonically non-decreasing
	Active                   bool     // staking allowed; unstake/claim always allowed
}

// Clone returns a deep copy.
func (p *FarmPool) Clone() *FarmPool {
	if p == nil {
		return nil
	}
	cp := *p
	cp.TotalStaked = cloneBig(p.TotalStaked)
	cp.RewardRatePerSecond = cloneBig(p.RewardRatePerSecond)
	cp.CumulativeRewardPerShare = cloneBig(p.CumulativeRewardPerShare)
	return &cp
}

// StakePosition represents one account's stake in one farm pool.
// Corresponds to the stake_positions table in PostgreSQL, keyed
// (account, pool_id). Survives at zero stake.
type StakePosition struct {
	Account            string
	PoolID             string
	StakedAmount       *big.Int
	RewardDebt         *big.Int // settled-but-unclaimed rewards
	LastSeenCumulative *big.Int // pool cumulative at last settlement
}

// Clone returns a deep copy.
func (s *StakePosition) Clone() *StakePosition {
	if s == nil {
		return nil
	}
	cp := *s
	cp.StakedAmount = cloneBig(s.StakedAmount)
	cp.RewardDebt = cloneBig(s.RewardDebt)
	cp.LastSeenCumulative = cloneBig(s.LastSeenCumulative)
	return &cp
}

// Snapshot bundles the full durable state of the engine, as a loader reads
// it from storage or a status endpoint reports it. Slices are sorted:
// shares and user tiers by account, tiers by ID, farm pools by ID,
// positions by (pool, account).
type Snapshot struct {
	Pool      *PoolState
	Shares    []*ShareBalance
	Tiers     []*Tier
	UserTiers []*UserTier
	Farms     []*FarmPool
	Positions []*StakePosition
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
