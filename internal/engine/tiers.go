package engine

import (
	"context"
	"fmt"
	"math/big"

	"fundex/internal/account"
	"fundex/internal/auth"
	"fundex/internal/domain"
)

// unitBase is the number of base units in one whole asset unit.
var unitBase = big.NewInt(1_000_000_000)

// DefaultTiers returns the stock three-tier table. Thresholds are share
// balances in base units.
func DefaultTiers() []*domain.Tier {
	return []*domain.Tier{
		{ID: 1, MinContribution: new(big.Int).Mul(big.NewInt(100), unitBase), RewardMultiplierBps: 10000, FlashFeeBps: 30, Enabled: true},
		{ID: 2, MinContribution: new(big.Int).Mul(big.NewInt(1000), unitBase), RewardMultiplierBps: 12500, FlashFeeBps: 25, Enabled: true},
		{ID: 3, MinContribution: new(big.Int).Mul(big.NewInt(10000), unitBase), RewardMultiplierBps: 15000, FlashFeeBps: 20, Enabled: true},
	}
}

func validateTiers(tiers []*domain.Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: at least one tier required", ErrInvalidTier)
	}
	var prev *big.Int
	for i, t := range tiers {
		if t == nil {
			return fmt.Errorf("%w: nil tier", ErrInvalidTier)
		}
		if t.ID != i+1 {
			return fmt.Errorf("%w: tier IDs must be contiguous from 1", ErrInvalidTier)
		}
		if !positiveAmount(t.MinContribution) {
			return fmt.Errorf("%w: tier %d threshold must be positive", ErrInvalidTier, t.ID)
		}
		if prev != nil && t.MinContribution.Cmp(prev) <= 0 {
			return fmt.Errorf("%w: tier thresholds must be strictly ascending", ErrInvalidTier)
		}
		if t.FlashFeeBps < 0 || t.FlashFeeBps > 10000 {
			return fmt.Errorf("%w: tier %d flash fee bps out of range", ErrInvalidTier, t.ID)
		}
		if t.RewardMultiplierBps < 0 {
			return fmt.Errorf("%w: tier %d reward multiplier must be non-negative", ErrInvalidTier, t.ID)
		}
		prev = t.MinContribution
	}
	return nil
}

// classify returns the highest enabled tier whose threshold does not
// exceed the contribution, 0 below the lowest. Thresholds ascend, so the
// scan stops at the first one out of reach.
func (s *state) classify(contribution *big.Int) int {
	best := 0
	for _, t := range s.tiers {
		if contribution.Cmp(t.MinContribution) < 0 {
			break
		}
		if t.Enabled {
			best = t.ID
		}
	}
	return best
}

// reclassify recomputes the account's tier from the given contribution and
// emits TierChanged only when it actually moved.
func (e *Engine) reclassify(account string, contribution *big.Int) {
	oldTier := e.st.userTiers[account]
	newTier := e.st.classify(contribution)
	if newTier == oldTier {
		return
	}
	if newTier == 0 {
		delete(e.st.userTiers, account)
	} else {
		e.st.userTiers[account] = newTier
	}
	e.emit(domain.EventTierChanged, account, &domain.TierChangedPayload{
		OldTier:      oldTier,
		NewTier:      newTier,
		Contribution: cloneBig(contribution),
	})
}

// UpdateTier reclassifies an account from an externally supplied
// contribution. Restricted to callers holding the ledger capability; the
// engine grants it only to trusted collaborators.
func (e *Engine) UpdateTier(ctx context.Context, caller auth.Caller, target string, contribution *big.Int) error {
	return e.execute(func() error {
		if err := caller.Require(auth.CapLedger); err != nil {
			return err
		}
		return e.updateTier(target, contribution)
	})
}

// ManualUpdateTier is the privileged recovery entry point; it bypasses the
// ledger-only restriction.
func (e *Engine) ManualUpdateTier(ctx context.Context, caller auth.Caller, target string, contribution *big.Int) error {
	return e.execute(func() error {
		if err := caller.Require(auth.CapAdmin); err != nil {
			return err
		}
		return e.updateTier(target, contribution)
	})
}

func (e *Engine) updateTier(target string, contribution *big.Int) error {
	if err := account.Validate(target); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	if contribution == nil || contribution.Sign() < 0 {
		return fmt.Errorf("%w: contribution must be non-negative", ErrInvalidInput)
	}
	e.reclassify(target, contribution)
	return nil
}

// ConfigureTier creates or updates a tier. The resulting table must keep
// IDs contiguous from 1 and thresholds strictly ascending; tiers are never
// deleted, only disabled. Allowed while paused.
func (e *Engine) ConfigureTier(ctx context.Context, caller auth.Caller, tier *domain.Tier) error {
	return e.execute(func() error {
		if err := caller.Require(auth.CapAdmin); err != nil {
			return err
		}
		if tier == nil {
			return fmt.Errorf("%w: tier is required", ErrInvalidInput)
		}
		next := cloneTiers(e.st.tiers)
		switch {
		case tier.ID >= 1 && tier.ID <= len(next):
			next[tier.ID-1] = tier.Clone()
		case tier.ID == len(next)+1:
			next = append(next, tier.Clone())
		default:
			return fmt.Errorf("%w: tier IDs must be contiguous from 1", ErrInvalidTier)
		}
		if err := validateTiers(next); err != nil {
			return err
		}
		e.st.tiers = next
		e.emit(domain.EventTierConfigured, caller.Account, &domain.TierConfiguredPayload{Tier: tier.Clone()})
		return nil
	})
}

// TierOf returns the account's current tier, 0 when ineligible.
func (e *Engine) TierOf(account string) (int, error) {
	var tier int
	err := e.view(func() error {
		tier = e.st.userTiers[account]
		return nil
	})
	return tier, err
}

// Tiers returns the tier table ordered by ID.
func (e *Engine) Tiers() ([]*domain.Tier, error) {
	var tiers []*domain.Tier
	err := e.view(func() error {
		tiers = cloneTiers(e.st.tiers)
		return nil
	})
	return tiers, err
}
