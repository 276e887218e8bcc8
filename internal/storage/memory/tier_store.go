package memory

import (
	"context"
	"sort"
	"sync"

	"fundex/internal/domain"
	"fundex/internal/storage"
)

// TierStore is an in-memory implementation of storage.TierStore.
type TierStore struct {
	mu    sync.RWMutex
	tiers map[int]*domain.Tier       // keyed by tier ID
	users map[string]*domain.UserTier // keyed by account
}

// NewTierStore creates a new in-memory tier store.
func NewTierStore() *TierStore {
	return &TierStore{
		tiers: make(map[int]*domain.Tier),
		users: make(map[string]*domain.UserTier),
	}
}

// Compile-time interface check.
var _ storage.TierStore = (*TierStore)(nil)

// SaveTier upserts one tier configuration row, keyed by tier ID.
func (s *TierStore) SaveTier(_ context.Context, t *domain.Tier) error {
	if t == nil || t.ID < 1 || t.MinContribution == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tiers[t.ID] = t.Clone()
	return nil
}

// ListTiers retrieves all tiers, ordered by ID ASC.
func (s *TierStore) ListTiers(_ context.Context) ([]*domain.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Tier, 0, len(s.tiers))
	for _, t := range s.tiers {
		result = append(result, t.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// SaveUserTier upserts one account's tier assignment. Tier 0 deletes the row.
func (s *TierStore) SaveUserTier(_ context.Context, u *domain.UserTier) error {
	if u == nil || u.Account == "" || u.Tier < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Tier == 0 {
		delete(s.users, u.Account)
		return nil
	}
	cp := *u
	s.users[u.Account] = &cp
	return nil
}

// ListUserTiers retrieves all assignments, ordered by account ASC.
func (s *TierStore) ListUserTiers(_ context.Context) ([]*domain.UserTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.UserTier, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Account < result[j].Account
	})

	return result, nil
}
