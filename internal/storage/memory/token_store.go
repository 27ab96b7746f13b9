package memory

import (
	"context"
	"sync"
	"time"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Token
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		data: make(map[string]*domain.Token),
	}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// InsertIgnore creates missing tokens.
func (s *TokenStore) InsertIgnore(_ context.Context, tokens []*domain.Token) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	for _, t := range tokens {
		if t == nil || t.Address == "" {
			return created, storage.ErrInvalidInput
		}
		if _, exists := s.data[t.Address]; exists {
			continue
		}
		cp := *t
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now().UTC()
		}
		s.data[t.Address] = &cp
		created++
	}
	return created, nil
}

// Get retrieves a token by address.
func (s *TokenStore) Get(_ context.Context, address string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}
