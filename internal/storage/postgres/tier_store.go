package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"fundex/internal/domain"
	"fundex/internal/storage"
)

// TierStore implements storage.TierStore using PostgreSQL.
type TierStore struct {
	pool *Pool
}

// NewTierStore creates a new TierStore.
func NewTierStore(pool *Pool) *TierStore {
	return &TierStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TierStore = (*TierStore)(nil)

// SaveTier upserts one tier configuration row, keyed by tier ID.
func (s *TierStore) SaveTier(ctx context.Context, t *domain.Tier) error {
	if t == nil || t.ID < 1 || t.MinContribution == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tiers (id, min_contribution, reward_multiplier_bps, flash_fee_bps, enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			min_contribution = EXCLUDED.min_contribution,
			reward_multiplier_bps = EXCLUDED.reward_multiplier_bps,
			flash_fee_bps = EXCLUDED.flash_fee_bps,
			enabled = EXCLUDED.enabled,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		t.ID, numericFromBig(t.MinContribution), t.RewardMultiplierBps, t.FlashFeeBps, t.Enabled,
	)
	if err != nil {
		return fmt.Errorf("save tier: %w", err)
	}
	return nil
}

// ListTiers retrieves all tiers, ordered by ID ASC.
func (s *TierStore) ListTiers(ctx context.Context) ([]*domain.Tier, error) {
	query := `
		SELECT id, min_contribution, reward_multiplier_bps, flash_fee_bps, enabled
		FROM tiers
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	var result []*domain.Tier
	for rows.Next() {
		var (
			t   domain.Tier
			min pgtype.Numeric
		)
		if err := rows.Scan(&t.ID, &min, &t.RewardMultiplierBps, &t.FlashFeeBps, &t.Enabled); err != nil {
			return nil, fmt.Errorf("scan tier row: %w", err)
		}
		if t.MinContribution, err = bigFromNumeric(min); err != nil {
			return nil, fmt.Errorf("decode min_contribution: %w", err)
		}
		result = append(result, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tier rows: %w", err)
	}
	return result, nil
}

// SaveUserTier upserts one account's tier assignment. Tier 0 deletes the row.
func (s *TierStore) SaveUserTier(ctx context.Context, u *domain.UserTier) error {
	if u == nil || u.Account == "" || u.Tier < 0 {
		return storage.ErrInvalidInput
	}

	if u.Tier == 0 {
		_, err := s.pool.Exec(ctx, `DELETE FROM user_tiers WHERE account = $1`, u.Account)
		if err != nil {
			return fmt.Errorf("delete user tier: %w", err)
		}
		return nil
	}

	query := `
		INSERT INTO user_tiers (account, tier, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (account) DO UPDATE SET
			tier = EXCLUDED.tier,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query, u.Account, u.Tier)
	if err != nil {
		return fmt.Errorf("save user tier: %w", err)
	}
	return nil
}

// ListUserTiers retrieves all assignments, ordered by account ASC.
func (s *TierStore) ListUserTiers(ctx context.Context) ([]*domain.UserTier, error) {
	query := `
		SELECT account, tier
		FROM user_tiers
		ORDER BY account ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list user tiers: %w", err)
	}
	defer rows.Close()

	var result []*domain.UserTier
	for rows.Next() {
		var u domain.UserTier
		if err := rows.Scan(&u.Account, &u.Tier); err != nil {
			return nil, fmt.Errorf("scan user tier row: %w", err)
		}
		result = append(result, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user tier rows: %w", err)
	}
	return result, nil
}
