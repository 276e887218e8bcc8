package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"fundex/internal/domain"
	"fundex/internal/storage"
)

// FarmStore implements storage.FarmStore using PostgreSQL.
type FarmStore struct {
	pool *Pool
}

// NewFarmStore creates a new FarmStore.
func NewFarmStore(pool *Pool) *FarmStore {
	return &FarmStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FarmStore = (*FarmStore)(nil)

// SaveFarmPool upserts one farm pool row, keyed by pool ID.
func (s *FarmStore) SaveFarmPool(ctx context.Context, p *domain.FarmPool) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO farm_pools (
			id, total_staked, reward_rate_per_second, last_update_unix,
			cumulative_reward_per_share, active, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			total_staked = EXCLUDED.total_staked,
			reward_rate_per_second = EXCLUDED.reward_rate_per_second,
			last_update_unix = EXCLUDED.last_update_unix,
			cumulative_reward_per_share = EXCLUDED.cumulative_reward_per_share,
			active = EXCLUDED.active,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		p.ID, numericFromBig(p.TotalStaked), numericFromBig(p.RewardRatePerSecond),
		p.LastUpdateUnix, numericFromBig(p.CumulativeRewardPerShare), p.Active,
	)
	if err != nil {
		return fmt.Errorf("save farm pool: %w", err)
	}
	return nil
}

// ListFarmPools retrieves all farm pools, ordered by ID ASC.
func (s *FarmStore) ListFarmPools(ctx context.Context) ([]*domain.FarmPool, error) {
	query := `
		SELECT id, total_staked, reward_rate_per_second, last_update_unix,
		       cumulative_reward_per_share, active
		FROM farm_pools
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list farm pools: %w", err)
	}
	defer rows.Close()

	var result []*domain.FarmPool
	for rows.Next() {
		var (
			p                 domain.FarmPool
			staked, rate, cum pgtype.Numeric
		)
		if err := rows.Scan(&p.ID, &staked, &rate, &p.LastUpdateUnix, &cum, &p.Active); err != nil {
			return nil, fmt.Errorf("scan farm pool row: %w", err)
		}
		if p.TotalStaked, err = bigFromNumeric(staked); err != nil {
			return nil, fmt.Errorf("decode total_staked: %w", err)
		}
		if p.RewardRatePerSecond, err = bigFromNumeric(rate); err != nil {
			return nil, fmt.Errorf("decode reward_rate_per_second: %w", err)
		}
		if p.CumulativeRewardPerShare, err = bigFromNumeric(cum); err != nil {
			return nil, fmt.Errorf("decode cumulative_reward_per_share: %w", err)
		}
		result = append(result, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate farm pool rows: %w", err)
	}
	return result, nil
}

// SaveStakePosition upserts one position row, keyed (account, pool_id).
func (s *FarmStore) SaveStakePosition(ctx context.Context, p *domain.StakePosition) error {
	if p == nil || p.Account == "" || p.PoolID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO stake_positions (
			account, pool_id, staked_amount, reward_debt, last_seen_cumulative, updated_at
		) VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (account, pool_id) DO UPDATE SET
			staked_amount = EXCLUDED.staked_amount,
			reward_debt = EXCLUDED.reward_debt,
			last_seen_cumulative = EXCLUDED.last_seen_cumulative,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		p.Account, p.PoolID, numericFromBig(p.StakedAmount),
		numericFromBig(p.RewardDebt), numericFromBig(p.LastSeenCumulative),
	)
	if err != nil {
		return fmt.Errorf("save stake position: %w", err)
	}
	return nil
}

// ListStakePositions retrieves all positions, ordered by (pool_id, account) ASC.
func (s *FarmStore) ListStakePositions(ctx context.Context) ([]*domain.StakePosition, error) {
	query := `
		SELECT account, pool_id, staked_amount, reward_debt, last_seen_cumulative
		FROM stake_positions
		ORDER BY pool_id ASC, account ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stake positions: %w", err)
	}
	defer rows.Close()

	var result []*domain.StakePosition
	for rows.Next() {
		var (
			p                  domain.StakePosition
			staked, debt, seen pgtype.Numeric
		)
		if err := rows.Scan(&p.Account, &p.PoolID, &staked, &debt, &seen); err != nil {
			return nil, fmt.Errorf("scan stake position row: %w", err)
		}
		if p.StakedAmount, err = bigFromNumeric(staked); err != nil {
			return nil, fmt.Errorf("decode staked_amount: %w", err)
		}
		if p.RewardDebt, err = bigFromNumeric(debt); err != nil {
			return nil, fmt.Errorf("decode reward_debt: %w", err)
		}
		if p.LastSeenCumulative, err = bigFromNumeric(seen); err != nil {
			return nil, fmt.Errorf("decode last_seen_cumulative: %w", err)
		}
		result = append(result, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stake position rows: %w", err)
	}
	return result, nil
}
