package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// FeedStore implements storage.FeedStore using PostgreSQL.
type FeedStore struct {
	pool *Pool
}

// NewFeedStore creates a new FeedStore.
func NewFeedStore(pool *Pool) *FeedStore {
	return &FeedStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeedStore = (*FeedStore)(nil)

// GetState retrieves the watermark. Returns ErrNotFound if never set.
func (s *FeedStore) GetState(ctx context.Context) (state *domain.FeedState, err error) {
	defer observe("feed_state.get", time.Now(), &err)

	var st domain.FeedState
	err = s.pool.QueryRow(ctx, `SELECT parsed_until, updated_at FROM feed_state WHERE id = 1`).
		Scan(&st.ParsedUntil, &st.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get feed state: %w", err)
	}
	st.ParsedUntil = st.ParsedUntil.UTC()
	return &st, nil
}

// SetParsedUntil persists the watermark.
func (s *FeedStore) SetParsedUntil(ctx context.Context, t time.Time) (err error) {
	defer observe("feed_state.set", time.Now(), &err)

	query := `
		INSERT INTO feed_state (id, parsed_until, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET
			parsed_until = EXCLUDED.parsed_until,
			updated_at   = EXCLUDED.updated_at
	`
	if _, err := s.pool.Exec(ctx, query, t.UTC()); err != nil {
		return fmt.Errorf("set parsed until: %w", err)
	}
	return nil
}

// ActiveAccount retrieves the lowest-id active credential. Returns ErrNotFound if none.
func (s *FeedStore) ActiveAccount(ctx context.Context) (a *domain.FeedAccount, err error) {
	defer observe("feed_accounts.active", time.Now(), &err)

	var acc domain.FeedAccount
	err = s.pool.QueryRow(ctx, `
		SELECT id, api_key, is_active
		FROM feed_accounts
		WHERE is_active
		ORDER BY id ASC
		LIMIT 1
	`).Scan(&acc.ID, &acc.APIKey, &acc.IsActive)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get active feed account: %w", err)
	}
	return &acc, nil
}

// Deactivate marks a credential inactive. Returns ErrNotFound if the id is unknown.
func (s *FeedStore) Deactivate(ctx context.Context, id int64) (err error) {
	defer observe("feed_accounts.deactivate", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `UPDATE feed_accounts SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate feed account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddAccount stores a new active credential. Returns ErrDuplicateKey if the key exists.
func (s *FeedStore) AddAccount(ctx context.Context, apiKey string) (a *domain.FeedAccount, err error) {
	defer observe("feed_accounts.add", time.Now(), &err)
	if apiKey == "" {
		return nil, storage.ErrInvalidInput
	}

	acc := domain.FeedAccount{APIKey: apiKey, IsActive: true}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO feed_accounts (api_key, is_active) VALUES ($1, TRUE) RETURNING id
	`, apiKey).Scan(&acc.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, storage.ErrDuplicateKey
		}
		return nil, fmt.Errorf("add feed account: %w", err)
	}
	return &acc, nil
}
