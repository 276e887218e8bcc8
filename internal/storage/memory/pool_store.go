// Package memory provides in-memory storage implementations, used by tests
// and by the server's --use-memory mode.
package memory

import (
	"context"
	"sort"
	"sync"

	"fundex/internal/domain"
	"fundex/internal/storage"
)

// PoolStore is an in-memory implementation of storage.PoolStore.
type PoolStore struct {
	mu     sync.RWMutex
	pool   *domain.PoolState
	shares map[string]*domain.ShareBalance // keyed by account
}

// NewPoolStore creates a new in-memory pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{
		shares: make(map[string]*domain.ShareBalance),
	}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// SavePool upserts the singleton pool row.
func (s *PoolStore) SavePool(_ context.Context, p *domain.PoolState) error {
	if p == nil || p.AssetA == "" || p.AssetB == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	s.pool = p.Clone()
	return nil
}

// GetPool retrieves the singleton pool row. Returns ErrNotFound if the pool
// was never saved.
func (s *PoolStore) GetPool(_ context.Context) (*domain.PoolState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pool == nil {
		return nil, storage.ErrNotFound
	}
	return s.pool.Clone(), nil
}

// SaveShareBalance upserts one account's share balance. A zero balance
// deletes the row.
func (s *PoolStore) SaveShareBalance(_ context.Context, b *domain.ShareBalance) error {
	if b == nil || b.Account == "" || b.Shares == nil || b.Shares.Sign() < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Shares.Sign() == 0 {
		delete(s.shares, b.Account)
		return nil
	}
	s.shares[b.Account] = b.Clone()
	return nil
}

// ListShareBalances retrieves all share balances, ordered by account ASC.
func (s *PoolStore) ListShareBalances(_ context.Context) ([]*domain.ShareBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ShareBalance, 0, len(s.shares))
	for _, b := range s.shares {
		result = append(result, b.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Account < result[j].Account
	})

	return result, nil
}
