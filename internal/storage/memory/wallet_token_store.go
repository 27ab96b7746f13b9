package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// WalletTokenStore is an in-memory implementation of storage.WalletTokenStore.
type WalletTokenStore struct {
	mu   sync.RWMutex
	data map[domain.PairKey]*domain.WalletToken
}

// NewWalletTokenStore creates a new in-memory wallet token store.
func NewWalletTokenStore() *WalletTokenStore {
	return &WalletTokenStore{
		data: make(map[domain.PairKey]*domain.WalletToken),
	}
}

// Compile-time interface check.
var _ storage.WalletTokenStore = (*WalletTokenStore)(nil)

// Upsert replaces aggregates on (wallet, token). Exposed for tests seeding aggregates
// without swap history.
func (s *WalletTokenStore) Upsert(_ context.Context, rows []*domain.WalletToken) error {
	for _, wt := range rows {
		if wt == nil || wt.WalletAddress == "" || wt.TokenAddress == "" {
			return storage.ErrInvalidInput
		}
	}
	s.upsert(rows)
	return nil
}

func (s *WalletTokenStore) upsert(rows []*domain.WalletToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, wt := range rows {
		cp := *wt
		cp.UpdatedAt = now
		s.data[cp.Key()] = &cp
	}
}

// GetByWallets retrieves all aggregates of the given wallets.
func (s *WalletTokenStore) GetByWallets(_ context.Context, addresses []string) ([]*domain.WalletToken, error) {
	want := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		want[a] = struct{}{}
	}

	s.mu.RLock()
	var result []*domain.WalletToken
	for key, wt := range s.data {
		if _, ok := want[key.WalletAddress]; !ok {
			continue
		}
		cp := *wt
		result = append(result, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].WalletAddress == result[j].WalletAddress {
			return result[i].TokenAddress < result[j].TokenAddress
		}
		return result[i].WalletAddress < result[j].WalletAddress
	})
	return result, nil
}

// GetTraded retrieves aggregates with a buy and a sell, most recent activity first.
func (s *WalletTokenStore) GetTraded(_ context.Context, walletAddress string, limit int) ([]*domain.WalletToken, error) {
	s.mu.RLock()
	var result []*domain.WalletToken
	for key, wt := range s.data {
		if key.WalletAddress != walletAddress || !wt.HasBuy() || !wt.HasSell() {
			continue
		}
		cp := *wt
		result = append(result, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].LastActivityTimestamp, result[j].LastActivityTimestamp
		switch {
		case a == nil && b == nil:
			return result[i].TokenAddress < result[j].TokenAddress
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return result[i].TokenAddress < result[j].TokenAddress
		}
		return a.After(*b)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
