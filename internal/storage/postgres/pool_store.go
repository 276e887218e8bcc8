package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"fundex/internal/domain"
	"fundex/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// SavePool upserts the singleton pool row.
func (s *PoolStore) SavePool(ctx context.Context, p *domain.PoolState) error {
	if p == nil || p.AssetA == "" || p.AssetB == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO reserve_pool (
			id, asset_a, asset_b, reserve_a, reserve_b, total_shares,
			max_slippage_bps, paused, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			asset_a = EXCLUDED.asset_a,
			asset_b = EXCLUDED.asset_b,
			reserve_a = EXCLUDED.reserve_a,
			reserve_b = EXCLUDED.reserve_b,
			total_shares = EXCLUDED.total_shares,
			max_slippage_bps = EXCLUDED.max_slippage_bps,
			paused = EXCLUDED.paused,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		p.AssetA, p.AssetB,
		numericFromBig(p.ReserveA), numericFromBig(p.ReserveB), numericFromBig(p.TotalShares),
		p.MaxSlippageBps, p.Paused,
	)
	if err != nil {
		return fmt.Errorf("save pool: %w", err)
	}
	return nil
}

// GetPool retrieves the singleton pool row. Returns ErrNotFound if the pool
// was never saved.
func (s *PoolStore) GetPool(ctx context.Context) (*domain.PoolState, error) {
	query := `
		SELECT asset_a, asset_b, reserve_a, reserve_b, total_shares,
		       max_slippage_bps, paused
		FROM reserve_pool
		WHERE id = 1
	`

	var (
		p                               domain.PoolState
		reserveA, reserveB, totalShares pgtype.Numeric
	)
	err := s.pool.QueryRow(ctx, query).Scan(
		&p.AssetA, &p.AssetB, &reserveA, &reserveB, &totalShares,
		&p.MaxSlippageBps, &p.Paused,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool: %w", err)
	}

	if p.ReserveA, err = bigFromNumeric(reserveA); err != nil {
		return nil, fmt.Errorf("decode reserve_a: %w", err)
	}
	if p.ReserveB, err = bigFromNumeric(reserveB); err != nil {
		return nil, fmt.Errorf("decode reserve_b: %w", err)
	}
	if p.TotalShares, err = bigFromNumeric(totalShares); err != nil {
		return nil, fmt.Errorf("decode total_shares: %w", err)
	}
	return &p, nil
}

// SaveShareBalance upserts one account's share balance. A zero balance
// deletes the row.
func (s *PoolStore) SaveShareBalance(ctx context.Context, b *domain.ShareBalance) error {
	if b == nil || b.Account == "" || b.Shares == nil || b.Shares.Sign() < 0 {
		return storage.ErrInvalidInput
	}

	if b.Shares.Sign() == 0 {
		_, err := s.pool.Exec(ctx, `DELETE FROM share_balances WHERE account = $1`, b.Account)
		if err != nil {
			return fmt.Errorf("delete share balance: %w", err)
		}
		return nil
	}

	query := `
		INSERT INTO share_balances (account, shares, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (account) DO UPDATE SET
			shares = EXCLUDED.shares,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query, b.Account, numericFromBig(b.Shares))
	if err != nil {
		return fmt.Errorf("save share balance: %w", err)
	}
	return nil
}

// ListShareBalances retrieves all share balances, ordered by account ASC.
func (s *PoolStore) ListShareBalances(ctx context.Context) ([]*domain.ShareBalance, error) {
	query := `
		SELECT account, shares
		FROM share_balances
		ORDER BY account ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list share balances: %w", err)
	}
	defer rows.Close()

	var result []*domain.ShareBalance
	for rows.Next() {
		var (
			b      domain.ShareBalance
			shares pgtype.Numeric
		)
		if err := rows.Scan(&b.Account, &shares); err != nil {
			return nil, fmt.Errorf("scan share balance row: %w", err)
		}
		if b.Shares, err = bigFromNumeric(shares); err != nil {
			return nil, fmt.Errorf("decode shares: %w", err)
		}
		result = append(result, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share balance rows: %w", err)
	}
	return result, nil
}
