package engine

import (
	"math/big"
	"sort"

	"fundex/internal/domain"
)

// state is the engine's aggregate: the reserve pool, share balances, tier
// table, tier assignments, the in-flight flash loan record, farm pools and
// stake positions. It is owned exclusively by the engine and only touched
// under the engine mutex.
type state struct {
	pool      *domain.PoolState
	shares    map[string]*big.Int
	tiers     []*domain.Tier // ascending by MinContribution, IDs 1..n
	userTiers map[string]int
	loan      *domain.FlashLoanRecord // nil unless a flash loan is executing
	farms     map[string]*domain.FarmPool
	positions map[string]*domain.StakePosition // keyed poolID + "/" + account
}

func newState(p Params) *state {
	return &state{
		pool: &domain.PoolState{
			AssetA:         string(p.AssetA),
			AssetB:         string(p.AssetB),
			ReserveA:       new(big.Int),
			ReserveB:       new(big.Int),
			TotalShares:    new(big.Int),
			MaxSlippageBps: p.MaxSlippageBps,
		},
		shares:    make(map[string]*big.Int),
		tiers:     cloneTiers(p.Tiers),
		userTiers: make(map[string]int),
		farms:     make(map[string]*domain.FarmPool),
		positions: make(map[string]*domain.StakePosition),
	}
}

// stateFromSnapshot rebuilds the aggregate from persisted durable state.
// The flash loan record is never persisted and always starts nil.
func stateFromSnapshot(p Params, snap *domain.Snapshot) *state {
	st := newState(p)
	if snap == nil {
		return st
	}
	if snap.Pool != nil {
		st.pool = snap.Pool.Clone()
	}
	for _, sb := range snap.Shares {
		st.shares[sb.Account] = cloneBig(sb.Shares)
	}
	if len(snap.Tiers) > 0 {
		st.tiers = cloneTiers(snap.Tiers)
	}
	for _, ut := range snap.UserTiers {
		if ut.Tier != 0 {
			st.userTiers[ut.Account] = ut.Tier
		}
	}
	for _, f := range snap.Farms {
		st.farms[f.ID] = f.Clone()
	}
	for _, pos := range snap.Positions {
		st.positions[positionKey(pos.PoolID, pos.Account)] = pos.Clone()
	}
	return st
}

// clone deep-copies the aggregate. Taken at the start of every mutating
// operation so a failure can restore the exact prior state.
func (s *state) clone() *state {
	cp := &state{
		pool:      s.pool.Clone(),
		shares:    make(map[string]*big.Int, len(s.shares)),
		tiers:     cloneTiers(s.tiers),
		userTiers: make(map[string]int, len(s.userTiers)),
		loan:      s.loan.Clone(),
		farms:     make(map[string]*domain.FarmPool, len(s.farms)),
		positions: make(map[string]*domain.StakePosition, len(s.positions)),
	}
	for account, v := range s.shares {
		cp.shares[account] = new(big.Int).Set(v)
	}
	for account, tier := range s.userTiers {
		cp.userTiers[account] = tier
	}
	for id, f := range s.farms {
		cp.farms[id] = f.Clone()
	}
	for k, pos := range s.positions {
		cp.positions[k] = pos.Clone()
	}
	return cp
}

// snapshot renders the durable state in deterministic order.
func (s *state) snapshot() *domain.Snapshot {
	snap := &domain.Snapshot{
		Pool:      s.pool.Clone(),
		Shares:    make([]*domain.ShareBalance, 0, len(s.shares)),
		Tiers:     cloneTiers(s.tiers),
		UserTiers: make([]*domain.UserTier, 0, len(s.userTiers)),
		Farms:     make([]*domain.FarmPool, 0, len(s.farms)),
		Positions: make([]*domain.StakePosition, 0, len(s.positions)),
	}
	for account, v := range s.shares {
		snap.Shares = append(snap.Shares, &domain.ShareBalance{Account: account, Shares: new(big.Int).Set(v)})
	}
	sort.Slice(snap.Shares, func(i, j int) bool { return snap.Shares[i].Account < snap.Shares[j].Account })

	for account, tier := range s.userTiers {
		snap.UserTiers = append(snap.UserTiers, &domain.UserTier{Account: account, Tier: tier})
	}
	sort.Slice(snap.UserTiers, func(i, j int) bool { return snap.UserTiers[i].Account < snap.UserTiers[j].Account })

	for _, f := range s.farms {
		snap.Farms = append(snap.Farms, f.Clone())
	}
	sort.Slice(snap.Farms, func(i, j int) bool { return snap.Farms[i].ID < snap.Farms[j].ID })

	for _, pos := range s.positions {
		snap.Positions = append(snap.Positions, pos.Clone())
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		if snap.Positions[i].PoolID != snap.Positions[j].PoolID {
			return snap.Positions[i].PoolID < snap.Positions[j].PoolID
		}
		return snap.Positions[i].Account < snap.Positions[j].Account
	})
	return snap
}

// shareBalance returns the account's share balance without copying.
// Callers must not mutate the result.
func (s *state) shareBalance(account string) *big.Int {
	if v, ok := s.shares[account]; ok {
		return v
	}
	return zeroShares
}

func (s *state) creditShares(account string, v *big.Int) {
	s.shares[account] = new(big.Int).Add(s.shareBalance(account), v)
}

func (s *state) debitShares(account string, v *big.Int) {
	s.shares[account] = new(big.Int).Sub(s.shareBalance(account), v)
}

func (s *state) tierByID(id int) *domain.Tier {
	if id < 1 || id > len(s.tiers) {
		return nil
	}
	return s.tiers[id-1]
}

// position returns the account's stake position in the pool, creating a
// zero position on first touch. The pool must exist.
func (s *state) position(poolID, account string) *domain.StakePosition {
	key := positionKey(poolID, account)
	if pos, ok := s.positions[key]; ok {
		return pos
	}
	pos := &domain.StakePosition{
		Account:            account,
		PoolID:             poolID,
		StakedAmount:       new(big.Int),
		RewardDebt:         new(big.Int),
		LastSeenCumulative: new(big.Int).Set(s.farms[poolID].CumulativeRewardPerShare),
	}
	s.positions[key] = pos
	return pos
}

func positionKey(poolID, account string) string {
	return poolID + "/" + account
}

func cloneTiers(tiers []*domain.Tier) []*domain.Tier {
	cp := make([]*domain.Tier, len(tiers))
	for i, t := range tiers {
		cp[i] = t.Clone()
	}
	return cp
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

var zeroShares = new(big.Int)
