package storage

import (
	"context"

	"fundex/internal/domain"
)

// PoolStore provides access to the reserve_pool singleton and the
// share_balances table.
type PoolStore interface {
	// SavePool upserts the singleton pool row.
	SavePool(ctx context.Context, p *domain.PoolState) error

	// GetPool retrieves the singleton pool row. Returns ErrNotFound if the
	// pool was never saved.
	GetPool(ctx context.Context) (*domain.PoolState, error)

	// SaveShareBalance upserts one account's share balance. A zero balance
	// deletes the row.
	SaveShareBalance(ctx context.Context, b *domain.ShareBalance) error

	// ListShareBalances retrieves all share balances, ordered by account ASC.
	ListShareBalances(ctx context.Context) ([]*domain.ShareBalance, error)
}

// TierStore provides access to the tiers and user_tiers tables.
type TierStore interface {
	// SaveTier upserts one tier configuration row, keyed by tier ID.
	SaveTier(ctx context.Context, t *domain.Tier) error

	// ListTiers retrieves all tiers, ordered by ID ASC.
	ListTiers(ctx context.Context) ([]*domain.Tier, error)

	// SaveUserTier upserts one account's tier assignment. Tier 0 deletes
	// the row.
	SaveUserTier(ctx context.Context, u *domain.UserTier) error

	// ListUserTiers retrieves all assignments, ordered by account ASC.
	ListUserTiers(ctx context.Context) ([]*domain.UserTier, error)
}

// FarmStore provides access to the farm_pools and stake_positions tables.
type FarmStore interface {
	// SaveFarmPool upserts one farm pool row, keyed by pool ID.
	SaveFarmPool(ctx context.Context, p *domain.FarmPool) error

	// ListFarmPools retrieves all farm pools, ordered by ID ASC.
	ListFarmPools(ctx context.Context) ([]*domain.FarmPool, error)

	// SaveStakePosition upserts one position row, keyed (account, pool_id).
	// Positions survive at zero stake; they are never deleted here.
	SaveStakePosition(ctx context.Context, s *domain.StakePosition) error

	// ListStakePositions retrieves all positions, ordered by
	// (pool_id, account) ASC.
	ListStakePositions(ctx context.Context) ([]*domain.StakePosition, error)
}

// EventJournal provides access to the append-only engine_events log.
type EventJournal interface {
	// Append journals a batch of committed events. Payloads are stored
	// JSON-encoded. The journal does not enforce ID uniqueness.
	Append(ctx context.Context, events []*domain.Event) error

	// GetByTimeRange retrieves journaled events within [start, end]
	// (inclusive, unix seconds), ordered by (unix, id) ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.JournalEvent, error)

	// GetByAccount retrieves all journaled events for one account,
	// ordered by (unix, id) ASC.
	GetByAccount(ctx context.Context, account string) ([]*domain.JournalEvent, error)
}
