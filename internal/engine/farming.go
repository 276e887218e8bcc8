package engine

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"fundex/internal/account"
	"fundex/internal/amm"
	"fundex/internal/auth"
	"fundex/internal/domain"
)

// accrue folds elapsed time into the pool's cumulative reward per share:
//
//	cumulative += elapsed * rate * Precision / totalStaked
//
// An idle pool only advances the timestamp: idle time earns nothing
// retroactively. Idempotent at an unchanged timestamp; a clock running
// backwards accrues nothing.
func accrue(p *domain.FarmPool, now int64) {
	if now <= p.LastUpdateUnix {
		return
	}
	if p.TotalStaked.Sign() == 0 {
		p.LastUpdateUnix = now
		return
	}
	earned := big.NewInt(now - p.LastUpdateUnix)
	earned.Mul(earned, p.RewardRatePerSecond)
	earned.Mul(earned, amm.Precision)
	earned.Quo(earned, p.TotalStaked)
	p.CumulativeRewardPerShare.Add(p.CumulativeRewardPerShare, earned)
	p.LastUpdateUnix = now
}

// pendingReward is the claimable amount for a position against an accrued
// pool.
func pendingReward(p *domain.FarmPool, pos *domain.StakePosition) *big.Int {
	pending := new(big.Int).Sub(p.CumulativeRewardPerShare, pos.LastSeenCumulative)
	pending.Mul(pending, pos.StakedAmount)
	pending.Quo(pending, amm.Precision)
	return pending.Add(pending, pos.RewardDebt)
}

// settle banks the pending reward into RewardDebt so a stake change does
// not retroactively apply to it.
func settle(p *domain.FarmPool, pos *domain.StakePosition) {
	pos.RewardDebt = pendingReward(p, pos)
	pos.LastSeenCumulative = new(big.Int).Set(p.CumulativeRewardPerShare)
}

// Stake locks amount of asset B in the farm treasury and starts earning at
// the pool's rate. The pool must be active.
func (e *Engine) Stake(ctx context.Context, caller auth.Caller, poolID string, amount *big.Int) error {
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
		pool, ok := e.st.farms[poolID]
		if !ok {
			return fmt.Errorf("pool %s: %w", poolID, ErrFarmPoolNotFound)
		}
		if !pool.Active {
			return fmt.Errorf("pool %s: %w", poolID, ErrFarmPoolInactive)
		}

		accrue(pool, e.clock())
		pos := e.st.position(poolID, caller.Account)
		settle(pool, pos)
		pos.StakedAmount.Add(pos.StakedAmount, amount)
		pool.TotalStaked.Add(pool.TotalStaked, amount)

		if err := e.pull(ctx, e.params.AssetB, caller.Account, account.FarmTreasury, amount); err != nil {
			return err
		}

		e.emit(domain.EventStaked, caller.Account, &domain.StakedPayload{
			PoolID:   poolID,
			Amount:   cloneBig(amount),
			Position: pos.Clone(),
			Pool:     pool.Clone(),
		})
		return nil
	})
}

// Unstake withdraws amount of staked principal. Allowed on inactive pools.
func (e *Engine) Unstake(ctx context.Context, caller auth.Caller, poolID string, amount *big.Int) error {
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
		pool, ok := e.st.farms[poolID]
		if !ok {
			return fmt.Errorf("pool %s: %w", poolID, ErrFarmPoolNotFound)
		}
		pos, ok := e.st.positions[positionKey(poolID, caller.Account)]
		if !ok || pos.StakedAmount.Cmp(amount) < 0 {
			return fmt.Errorf("unstaking %s: %w", amount, ErrInsufficientStake)
		}

		accrue(pool, e.clock())
		settle(pool, pos)
		pos.StakedAmount.Sub(pos.StakedAmount, amount)
		pool.TotalStaked.Sub(pool.TotalStaked, amount)

		if err := e.push(ctx, e.params.AssetB, account.FarmTreasury, caller.Account, amount); err != nil {
			return err
		}

		e.emit(domain.EventUnstaked, caller.Account, &domain.UnstakedPayload{
			PoolID:   poolID,
			Amount:   cloneBig(amount),
			Position: pos.Clone(),
			Pool:     pool.Clone(),
		})
		return nil
	})
}

// ClaimRewards pays out the position's accrued rewards from the farm
// treasury. A zero pending amount succeeds without effect. Returns the
// amount paid.
func (e *Engine) ClaimRewards(ctx context.Context, caller auth.Caller, poolID string) (*big.Int, error) {
	paid := new(big.Int)
	err := e.execute(func() error {
		if e.st.pool.Paused {
			return ErrEnginePaused
		}
		if err := account.RequireWallet(caller.Account); err != nil {
			return fmt.Errorf("caller: %w", err)
		}
		pool, ok := e.st.farms[poolID]
		if !ok {
			return fmt.Errorf("pool %s: %w", poolID, ErrFarmPoolNotFound)
		}
		pos, ok := e.st.positions[positionKey(poolID, caller.Account)]
		if !ok {
			return nil
		}

		accrue(pool, e.clock())
		pending := pendingReward(pool, pos)
		if pending.Sign() == 0 {
			return nil
		}

		treasury, err := e.ledger.BalanceOf(ctx, e.params.AssetB, account.FarmTreasury)
		if err != nil {
			return err
		}
		if treasury.Cmp(pending) < 0 {
			return fmt.Errorf("treasury holds %s of owed %s: %w", treasury, pending, ErrInsufficientRewardBalance)
		}

		pos.RewardDebt = new(big.Int)
		pos.LastSeenCumulative = new(big.Int).Set(pool.CumulativeRewardPerShare)

		if err := e.push(ctx, e.params.AssetB, account.FarmTreasury, caller.Account, pending); err != nil {
			return err
		}
		paid = pending

		e.emit(domain.EventRewardsClaimed, caller.Account, &domain.RewardsClaimedPayload{
			PoolID:   poolID,
			Amount:   cloneBig(pending),
			Position: pos.Clone(),
			Pool:     pool.Clone(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// PendingRewards previews the claimable amount at the current clock
// without mutating anything.
func (e *Engine) PendingRewards(poolID, accountID string) (*big.Int, error) {
	var pending *big.Int
	err := e.view(func() error {
		pool, ok := e.st.farms[poolID]
		if !ok {
			return fmt.Errorf("pool %s: %w", poolID, ErrFarmPoolNotFound)
		}
		pos, ok := e.st.positions[positionKey(poolID, accountID)]
		if !ok {
			pending = new(big.Int)
			return nil
		}
		virtual := pool.Clone()
		accrue(virtual, e.clock())
		pending = pendingReward(virtual, pos)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// CreateFarmPool registers a pool with a constant reward rate per second.
// Allowed while paused.
func (e *Engine) CreateFarmPool(ctx context.Context, caller auth.Caller, poolID string, rewardRate *big.Int) error {
	return e.execute(func() error {
		if err := caller.Require(auth.CapAdmin); err != nil {
			return err
		}
		if !validPoolID(poolID) {
			return fmt.Errorf("%w: pool id must be 1-64 chars of [A-Za-z0-9_-]", ErrInvalidInput)
		}
		if !positiveAmount(rewardRate) {
			return fmt.Errorf("%w: reward rate must be positive", ErrInvalidInput)
		}
		if len(e.st.farms) >= e.params.MaxFarmPools {
			return fmt.Errorf("%d pools: %w", len(e.st.farms), ErrFarmPoolLimit)
		}
		if _, ok := e.st.farms[poolID]; ok {
			return fmt.Errorf("pool %s: %w", poolID, ErrFarmPoolExists)
		}

		pool := &domain.FarmPool{
			ID:                       poolID,
			TotalStaked:              new(big.Int),
			RewardRatePerSecond:      cloneBig(rewardRate),
			LastUpdateUnix:           e.clock(),
			CumulativeRewardPerShare: new(big.Int),
			Active:                   true,
		}
		e.st.farms[poolID] = pool
		e.emit(domain.EventFarmPoolCreated, caller.Account, &domain.FarmPoolCreatedPayload{Pool: pool.Clone()})
		return nil
	})
}

// SetFarmPoolActive enables or disables staking into a pool. Unstaking and
// claiming stay available on disabled pools. Emits only on an actual
// change. Allowed while paused.
func (e *Engine) SetFarmPoolActive(ctx context.Context, caller auth.Caller, poolID string, active bool) error {
	return e.execute(func() error {
		if err := caller.Require(auth.CapAdmin); err != nil {
			return err
		}
		pool, ok := e.st.farms[poolID]
		if !ok {
			return fmt.Errorf("pool %s: %w", poolID, ErrFarmPoolNotFound)
		}
		if pool.Active == active {
			return nil
		}
		accrue(pool, e.clock())
		pool.Active = active
		e.emit(domain.EventFarmPoolStatusChanged, caller.Account, &domain.FarmPoolStatusChangedPayload{Pool: pool.Clone()})
		return nil
	})
}

// FarmPoolState returns a copy of one pool.
func (e *Engine) FarmPoolState(poolID string) (*domain.FarmPool, error) {
	var pool *domain.FarmPool
	err := e.view(func() error {
		p, ok := e.st.farms[poolID]
		if !ok {
			return fmt.Errorf("pool %s: %w", poolID, ErrFarmPoolNotFound)
		}
		pool = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// FarmPools returns all pools ordered by ID.
func (e *Engine) FarmPools() ([]*domain.FarmPool, error) {
	var pools []*domain.FarmPool
	err := e.view(func() error {
		pools = make([]*domain.FarmPool, 0, len(e.st.farms))
		for _, p := range e.st.farms {
			pools = append(pools, p.Clone())
		}
		sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pools, nil
}

func validPoolID(id string) bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
