package persistence

import (
	"context"
	"errors"
	"fmt"

	"fundex/internal/domain"
	"fundex/internal/storage"
)

// Loader reassembles persisted engine state into a snapshot the engine can
// restore at construction.
type Loader struct {
	pools storage.PoolStore
	tiers storage.TierStore
	farms storage.FarmStore
}

// NewLoader wires a loader over the given stores.
func NewLoader(pools storage.PoolStore, tiers storage.TierStore, farms storage.FarmStore) *Loader {
	return &Loader{pools: pools, tiers: tiers, farms: farms}
}

// Load reads every store into one snapshot. A missing pool row is not an
// error: tiers may be configured before the first deposit, so Load keeps
// whatever exists and returns nil only when nothing was ever persisted.
func (l *Loader) Load(ctx context.Context) (*domain.Snapshot, error) {
	pool, err := l.pools.GetPool(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	shares, err := l.pools.ListShareBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("load share balances: %w", err)
	}
	tiers, err := l.tiers.ListTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tiers: %w", err)
	}
	users, err := l.tiers.ListUserTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load user tiers: %w", err)
	}
	farms, err := l.farms.ListFarmPools(ctx)
	if err != nil {
		return nil, fmt.Errorf("load farm pools: %w", err)
	}
	positions, err := l.farms.ListStakePositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stake positions: %w", err)
	}

	if pool == nil && len(shares) == 0 && len(tiers) == 0 && len(users) == 0 && len(farms) == 0 && len(positions) == 0 {
		return nil, nil
	}
	return &domain.Snapshot{
		Pool:      pool,
		Shares:    shares,
		Tiers:     tiers,
		UserTiers: users,
		Farms:     farms,
		Positions: positions,
	}, nil
}

// SeedTiers persists the engine's full tier table. Called once on first
// boot: ConfigureTier events only upsert the tiers they touch, so without
// the seed a restore would see a partial table instead of the defaults.
func SeedTiers(ctx context.Context, store storage.TierStore, tiers []*domain.Tier) error {
	for _, t := range tiers {
		if err := store.SaveTier(ctx, t); err != nil {
			return fmt.Errorf("seed tier %d: %w", t.ID, err)
		}
	}
	return nil
}
