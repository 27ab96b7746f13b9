package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

type priceKey struct {
	token  string
	minute int64
}

// PriceStore is an in-memory implementation of storage.PriceStore.
type PriceStore struct {
	mu   sync.RWMutex
	data map[priceKey]*domain.TokenPrice
}

// NewPriceStore creates a new in-memory price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{
		data: make(map[priceKey]*domain.TokenPrice),
	}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// InsertIgnore adds prices, skipping minutes already stored.
func (s *PriceStore) InsertIgnore(_ context.Context, prices []*domain.TokenPrice) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, p := range prices {
		if p == nil || p.TokenAddress == "" {
			return inserted, storage.ErrInvalidInput
		}
		cp := *p
		cp.Minute = p.Minute.UTC().Truncate(time.Minute)
		key := priceKey{cp.TokenAddress, cp.Minute.Unix()}
		if _, exists := s.data[key]; exists {
			continue
		}
		s.data[key] = &cp
		inserted++
	}
	return inserted, nil
}

// GetRange retrieves prices of a token within [from, to].
func (s *PriceStore) GetRange(_ context.Context, tokenAddress string, from, to time.Time) ([]*domain.TokenPrice, error) {
	s.mu.RLock()
	var result []*domain.TokenPrice
	for key, p := range s.data {
		if key.token != tokenAddress || p.Minute.Before(from) || p.Minute.After(to) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Minute.Before(result[j].Minute)
	})
	return result, nil
}

// Latest retrieves the most recent price of a token.
func (s *PriceStore) Latest(_ context.Context, tokenAddress string) (*domain.TokenPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.TokenPrice
	for key, p := range s.data {
		if key.token != tokenAddress {
			continue
		}
		if latest == nil || p.Minute.After(latest.Minute) {
			latest = p
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}
