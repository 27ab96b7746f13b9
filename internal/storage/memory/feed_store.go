package memory

import (
	"context"
	"sync"
	"time"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// FeedStore is an in-memory implementation of storage.FeedStore.
type FeedStore struct {
	mu       sync.RWMutex
	state    *domain.FeedState
	accounts []*domain.FeedAccount
	nextID   int64
}

// NewFeedStore creates a new in-memory feed store.
func NewFeedStore() *FeedStore {
	return &FeedStore{nextID: 1}
}

// Compile-time interface check.
var _ storage.FeedStore = (*FeedStore)(nil)

// GetState retrieves the watermark.
func (s *FeedStore) GetState(_ context.Context) (*domain.FeedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.state
	return &cp, nil
}

// SetParsedUntil persists the watermark.
func (s *FeedStore) SetParsedUntil(_ context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = &domain.FeedState{ParsedUntil: t.UTC(), UpdatedAt: time.Now().UTC()}
	return nil
}

// ActiveAccount retrieves the lowest-id active credential.
func (s *FeedStore) ActiveAccount(_ context.Context) (*domain.FeedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.IsActive {
			cp := *a
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// Deactivate marks a credential inactive.
func (s *FeedStore) Deactivate(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.ID == id {
			a.IsActive = false
			return nil
		}
	}
	return storage.ErrNotFound
}

// AddAccount stores a new active credential.
func (s *FeedStore) AddAccount(_ context.Context, apiKey string) (*domain.FeedAccount, error) {
	if apiKey == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.APIKey == apiKey {
			return nil, storage.ErrDuplicateKey
		}
	}
	a := &domain.FeedAccount{ID: s.nextID, APIKey: apiKey, IsActive: true}
	s.nextID++
	s.accounts = append(s.accounts, a)
	cp := *a
	return &cp, nil
}
