package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

const walletColumns = `address, first_activity_timestamp, last_activity_timestamp, last_stats_check, created_at`

// InsertIgnore creates missing wallets together with an empty wallet_details row.
func (s *WalletStore) InsertIgnore(ctx context.Context, wallets []*domain.Wallet) (n int, err error) {
	defer observe("wallets.insert_ignore", time.Now(), &err)
	if len(wallets) == 0 {
		return 0, nil
	}
	for _, w := range wallets {
		if w == nil || w.Address == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, w := range wallets {
		batch.Queue(`
			INSERT INTO wallets (address, first_activity_timestamp, last_activity_timestamp)
			VALUES ($1, $2, $3)
			ON CONFLICT (address) DO NOTHING
		`, w.Address, w.FirstActivityTimestamp, w.LastActivityTimestamp)
	}
	created, err := sendBatch(ctx, tx, batch)
	if err != nil {
		return 0, fmt.Errorf("insert wallets: %w", err)
	}

	addresses := make([]string, len(wallets))
	for i, w := range wallets {
		addresses[i] = w.Address
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_details (wallet_address)
		SELECT unnest($1::text[])
		ON CONFLICT (wallet_address) DO NOTHING
	`, addresses)
	if err != nil {
		return 0, fmt.Errorf("insert wallet details: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return int(created), nil
}

// Get retrieves a wallet by address. Returns ErrNotFound if not exists.
func (s *WalletStore) Get(ctx context.Context, address string) (w *domain.Wallet, err error) {
	defer observe("wallets.get", time.Now(), &err)

	query := `SELECT ` + walletColumns + ` FROM wallets WHERE address = $1`
	w, err = scanWallet(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// GetStale retrieves wallets active after activeSince, never-checked first.
func (s *WalletStore) GetStale(ctx context.Context, activeSince time.Time, limit int) (wallets []*domain.Wallet, err error) {
	defer observe("wallets.get_stale", time.Now(), &err)

	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE last_activity_timestamp > $1
		ORDER BY last_stats_check ASC NULLS FIRST, address ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, activeSince, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("get stale wallets: %w", err)
	}
	defer rows.Close()

	return scanWallets(rows)
}

// UpdateActivity moves last activity later and first activity earlier.
func (s *WalletStore) UpdateActivity(ctx context.Context, wallets []*domain.Wallet) (err error) {
	defer observe("wallets.update_activity", time.Now(), &err)

	batch := &pgx.Batch{}
	for _, w := range wallets {
		if w.FirstActivityTimestamp == nil && w.LastActivityTimestamp == nil {
			continue
		}
		batch.Queue(`
			UPDATE wallets SET
				last_activity_timestamp  = GREATEST(last_activity_timestamp, $2),
				first_activity_timestamp = LEAST(first_activity_timestamp, $3)
			WHERE address = $1
		`, w.Address, w.LastActivityTimestamp, w.FirstActivityTimestamp)
	}
	return s.runBatch(ctx, batch, "update wallet activity")
}

// UpdateStatsCheck writes last_stats_check and moves first activity earlier.
func (s *WalletStore) UpdateStatsCheck(ctx context.Context, wallets []*domain.Wallet) (err error) {
	defer observe("wallets.update_stats_check", time.Now(), &err)

	batch := &pgx.Batch{}
	for _, w := range wallets {
		batch.Queue(`
			UPDATE wallets SET
				last_stats_check         = COALESCE($2, last_stats_check),
				first_activity_timestamp = LEAST(first_activity_timestamp, $3)
			WHERE address = $1
		`, w.Address, w.LastStatsCheck, w.FirstActivityTimestamp)
	}
	return s.runBatch(ctx, batch, "update stats check")
}

// GetDetails retrieves detail rows for the given wallets.
func (s *WalletStore) GetDetails(ctx context.Context, addresses []string) (details []*domain.WalletDetail, err error) {
	defer observe("wallet_details.get", time.Now(), &err)
	if len(addresses) == 0 {
		return nil, nil
	}

	query := `
		SELECT wallet_address, is_scammer, is_bot, sol_balance, updated_at
		FROM wallet_details
		WHERE wallet_address = ANY($1)
		ORDER BY wallet_address
	`
	rows, err := s.pool.Query(ctx, query, addresses)
	if err != nil {
		return nil, fmt.Errorf("get wallet details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d domain.WalletDetail
		if err := rows.Scan(&d.WalletAddress, &d.IsScammer, &d.IsBot, &d.SolBalance, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet detail row: %w", err)
		}
		details = append(details, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet detail rows: %w", err)
	}
	return details, nil
}

// UpdateFlags writes is_bot and is_scammer for the given wallets.
func (s *WalletStore) UpdateFlags(ctx context.Context, details []*domain.WalletDetail) (err error) {
	defer observe("wallet_details.update_flags", time.Now(), &err)

	batch := &pgx.Batch{}
	for _, d := range details {
		batch.Queue(`
			INSERT INTO wallet_details (wallet_address, is_scammer, is_bot, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (wallet_address) DO UPDATE SET
				is_scammer = EXCLUDED.is_scammer,
				is_bot     = EXCLUDED.is_bot,
				updated_at = EXCLUDED.updated_at
		`, d.WalletAddress, d.IsScammer, d.IsBot)
	}
	return s.runBatch(ctx, batch, "update wallet flags")
}

func (s *WalletStore) runBatch(ctx context.Context, batch *pgx.Batch, what string) error {
	if batch.Len() == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := sendBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// limitOrAll maps a non-positive limit to NULL, which LIMIT treats as no limit.
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(
		&w.Address,
		&w.FirstActivityTimestamp,
		&w.LastActivityTimestamp,
		&w.LastStatsCheck,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func scanWallets(rows pgx.Rows) ([]*domain.Wallet, error) {
	var wallets []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}
