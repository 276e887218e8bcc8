package memory

import (
	"context"
	"sort"
	"sync"

	"fundex/internal/domain"
	"fundex/internal/storage"
)

// positionKey identifies one stake position.
type positionKey struct {
	account string
	poolID  string
}

// FarmStore is an in-memory implementation of storage.FarmStore.
type FarmStore struct {
	mu        sync.RWMutex
	pools     map[string]*domain.FarmPool // keyed by pool ID
	positions map[positionKey]*domain.StakePosition
}

// NewFarmStore creates a new in-memory farm store.
func NewFarmStore() *FarmStore {
	return &FarmStore{
		pools:     make(map[string]*domain.FarmPool),
		positions: make(map[positionKey]*domain.StakePosition),
	}
}

// Compile-time interface check.
var _ storage.FarmStore = (*FarmStore)(nil)

// SaveFarmPool upserts one farm pool row, keyed by pool ID.
func (s *FarmStore) SaveFarmPool(_ context.Context, p *domain.FarmPool) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pools[p.ID] = p.Clone()
	return nil
}

// ListFarmPools retrieves all farm pools, ordered by ID ASC.
func (s *FarmStore) ListFarmPools(_ context.Context) ([]*domain.FarmPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.FarmPool, 0, len(s.pools))
	for _, p := range s.pools {
		result = append(result, p.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// SaveStakePosition upserts one position row, keyed (account, pool_id).
func (s *FarmStore) SaveStakePosition(_ context.Context, p *domain.StakePosition) error {
	if p == nil || p.Account == "" || p.PoolID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[positionKey{p.Account, p.PoolID}] = p.Clone()
	return nil
}

// ListStakePositions retrieves all positions, ordered by (pool_id, account) ASC.
func (s *FarmStore) ListStakePositions(_ context.Context) ([]*domain.StakePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.StakePosition, 0, len(s.positions))
	for _, p := range s.positions {
		result = append(result, p.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].PoolID != result[j].PoolID {
			return result[i].PoolID < result[j].PoolID
		}
		return result[i].Account < result[j].Account
	})

	return result, nil
}
