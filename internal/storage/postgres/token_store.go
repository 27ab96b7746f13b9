package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// InsertIgnore creates missing tokens. Metadata of existing tokens is never overwritten.
func (s *TokenStore) InsertIgnore(ctx context.Context, tokens []*domain.Token) (n int, err error) {
	defer observe("tokens.insert_ignore", time.Now(), &err)
	if len(tokens) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range tokens {
		if t == nil || t.Address == "" {
			return 0, storage.ErrInvalidInput
		}
		batch.Queue(`
			INSERT INTO tokens (address, name, symbol, uri, logo, created_on, is_metadata_parsed)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (address) DO NOTHING
		`, t.Address, t.Name, t.Symbol, t.URI, t.Logo, t.CreatedOn, t.IsMetadataParsed)
	}
	created, err := sendBatch(ctx, tx, batch)
	if err != nil {
		return 0, fmt.Errorf("insert tokens: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return int(created), nil
}

// Get retrieves a token by address. Returns ErrNotFound if not exists.
func (s *TokenStore) Get(ctx context.Context, address string) (t *domain.Token, err error) {
	defer observe("tokens.get", time.Now(), &err)

	query := `
		SELECT address, name, symbol, uri, logo, created_on, is_metadata_parsed, created_at
		FROM tokens
		WHERE address = $1
	`
	var token domain.Token
	err = s.pool.QueryRow(ctx, query, address).Scan(
		&token.Address,
		&token.Name,
		&token.Symbol,
		&token.URI,
		&token.Logo,
		&token.CreatedOn,
		&token.IsMetadataParsed,
		&token.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &token, nil
}
