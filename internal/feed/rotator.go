package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// SourceFactory builds a Source for one credential.
type SourceFactory func(apiKey string) Source

// Rotator hands out a Source for the first active credential and retires
// credentials that fail.
type Rotator struct {
	store   storage.FeedStore
	factory SourceFactory
	logger  *zap.Logger

	mu      sync.Mutex
	account *domain.FeedAccount
	source  Source
}

// NewRotator creates a Rotator over the credentials in store.
func NewRotator(store storage.FeedStore, factory SourceFactory, logger *zap.Logger) *Rotator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rotator{store: store, factory: factory, logger: logger}
}

// Current returns the source of the active credential, or ErrNoCredentials.
func (r *Rotator) Current(ctx context.Context) (Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.source != nil {
		return r.source, nil
	}

	account, err := r.store.ActiveAccount(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load feed account: %w", err)
	}

	r.account = account
	r.source = r.factory(account.APIKey)
	return r.source, nil
}

// Rotate deactivates the current credential so the next Current call picks another.
func (r *Rotator) Rotate(ctx context.Context, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.account == nil {
		return nil
	}
	if err := r.store.Deactivate(ctx, r.account.ID); err != nil {
		return fmt.Errorf("deactivate feed account %d: %w", r.account.ID, err)
	}
	r.logger.Warn("feed credential retired",
		zap.Int64("account_id", r.account.ID),
		zap.Error(cause))

	r.account = nil
	r.source = nil
	return nil
}
