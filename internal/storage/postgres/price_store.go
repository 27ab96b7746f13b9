package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// PriceStore implements storage.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *Pool
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(pool *Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// InsertIgnore adds prices, skipping minutes already stored.
func (s *PriceStore) InsertIgnore(ctx context.Context, prices []*domain.TokenPrice) (n int, err error) {
	defer observe("token_prices.insert_ignore", time.Now(), &err)
	if len(prices) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range prices {
		if p == nil || p.TokenAddress == "" {
			return 0, storage.ErrInvalidInput
		}
		batch.Queue(`
			INSERT INTO token_prices (token_address, minute, price_usd)
			VALUES ($1, $2, $3)
			ON CONFLICT (token_address, minute) DO NOTHING
		`, p.TokenAddress, p.Minute.UTC().Truncate(time.Minute), p.PriceUSD)
	}
	inserted, err := sendBatch(ctx, tx, batch)
	if err != nil {
		return 0, fmt.Errorf("insert prices: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return int(inserted), nil
}

// GetRange retrieves prices of a token within [from, to], ordered by minute ASC.
func (s *PriceStore) GetRange(ctx context.Context, tokenAddress string, from, to time.Time) (prices []*domain.TokenPrice, err error) {
	defer observe("token_prices.get_range", time.Now(), &err)

	query := `
		SELECT token_address, minute, price_usd
		FROM token_prices
		WHERE token_address = $1 AND minute >= $2 AND minute <= $3
		ORDER BY minute ASC
	`
	rows, err := s.pool.Query(ctx, query, tokenAddress, from, to)
	if err != nil {
		return nil, fmt.Errorf("get price range: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price rows: %w", err)
	}
	return prices, nil
}

// Latest retrieves the most recent price of a token. Returns ErrNotFound if none.
func (s *PriceStore) Latest(ctx context.Context, tokenAddress string) (p *domain.TokenPrice, err error) {
	defer observe("token_prices.latest", time.Now(), &err)

	query := `
		SELECT token_address, minute, price_usd
		FROM token_prices
		WHERE token_address = $1
		ORDER BY minute DESC
		LIMIT 1
	`
	p, err = scanPrice(s.pool.QueryRow(ctx, query, tokenAddress))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest price: %w", err)
	}
	return p, nil
}

func scanPrice(row pgx.Row) (*domain.TokenPrice, error) {
	var p domain.TokenPrice
	if err := row.Scan(&p.TokenAddress, &p.Minute, &p.PriceUSD); err != nil {
		return nil, err
	}
	p.Minute = p.Minute.UTC()
	return &p, nil
}
