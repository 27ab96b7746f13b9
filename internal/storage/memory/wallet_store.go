package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu      sync.RWMutex
	data    map[string]*domain.Wallet
	details map[string]*domain.WalletDetail
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		data:    make(map[string]*domain.Wallet),
		details: make(map[string]*domain.WalletDetail),
	}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// InsertIgnore creates missing wallets together with an empty detail row.
func (s *WalletStore) InsertIgnore(_ context.Context, wallets []*domain.Wallet) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	now := time.Now().UTC()
	for _, w := range wallets {
		if w == nil || w.Address == "" {
			return created, storage.ErrInvalidInput
		}
		if _, exists := s.data[w.Address]; exists {
			continue
		}
		cp := *w
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.data[w.Address] = &cp
		if _, exists := s.details[w.Address]; !exists {
			s.details[w.Address] = &domain.WalletDetail{WalletAddress: w.Address, UpdatedAt: now}
		}
		created++
	}
	return created, nil
}

// Get retrieves a wallet by address.
func (s *WalletStore) Get(_ context.Context, address string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

// GetStale retrieves wallets active after activeSince, never-checked first.
func (s *WalletStore) GetStale(_ context.Context, activeSince time.Time, limit int) ([]*domain.Wallet, error) {
	s.mu.RLock()
	var result []*domain.Wallet
	for _, w := range s.data {
		if w.LastActivityTimestamp == nil || !w.LastActivityTimestamp.After(activeSince) {
			continue
		}
		cp := *w
		result = append(result, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].LastStatsCheck, result[j].LastStatsCheck
		switch {
		case a == nil && b == nil:
			return result[i].Address < result[j].Address
		case a == nil:
			return true
		case b == nil:
			return false
		case a.Equal(*b):
			return result[i].Address < result[j].Address
		}
		return a.Before(*b)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// UpdateActivity moves last activity later and first activity earlier.
func (s *WalletStore) UpdateActivity(_ context.Context, wallets []*domain.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range wallets {
		existing, ok := s.data[w.Address]
		if !ok {
			continue
		}
		if w.LastActivityTimestamp != nil &&
			(existing.LastActivityTimestamp == nil || w.LastActivityTimestamp.After(*existing.LastActivityTimestamp)) {
			t := *w.LastActivityTimestamp
			existing.LastActivityTimestamp = &t
		}
		moveEarlier(existing, w.FirstActivityTimestamp)
	}
	return nil
}

// UpdateStatsCheck writes last_stats_check and moves first activity earlier.
func (s *WalletStore) UpdateStatsCheck(_ context.Context, wallets []*domain.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range wallets {
		existing, ok := s.data[w.Address]
		if !ok {
			continue
		}
		if w.LastStatsCheck != nil {
			t := *w.LastStatsCheck
			existing.LastStatsCheck = &t
		}
		moveEarlier(existing, w.FirstActivityTimestamp)
	}
	return nil
}

func moveEarlier(w *domain.Wallet, first *time.Time) {
	if first == nil {
		return
	}
	if w.FirstActivityTimestamp == nil || first.Before(*w.FirstActivityTimestamp) {
		t := *first
		w.FirstActivityTimestamp = &t
	}
}

// GetDetails retrieves detail rows for the given wallets.
func (s *WalletStore) GetDetails(_ context.Context, addresses []string) ([]*domain.WalletDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WalletDetail
	for _, addr := range addresses {
		d, ok := s.details[addr]
		if !ok {
			continue
		}
		cp := *d
		result = append(result, &cp)
	}
	return result, nil
}

// UpdateFlags writes is_bot and is_scammer for the given wallets.
func (s *WalletStore) UpdateFlags(_ context.Context, details []*domain.WalletDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, d := range details {
		existing, ok := s.details[d.WalletAddress]
		if !ok {
			existing = &domain.WalletDetail{WalletAddress: d.WalletAddress}
			s.details[d.WalletAddress] = existing
		}
		existing.IsBot = d.IsBot
		existing.IsScammer = d.IsScammer
		existing.UpdatedAt = now
	}
	return nil
}
