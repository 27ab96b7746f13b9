package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// SwapStore implements storage.SwapStore and storage.TradeReader using PostgreSQL.
type SwapStore struct {
	pool *Pool
}

// NewSwapStore creates a new SwapStore.
func NewSwapStore(pool *Pool) *SwapStore {
	return &SwapStore{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.SwapStore   = (*SwapStore)(nil)
	_ storage.TradeReader = (*SwapStore)(nil)
)

const swapColumns = `
	tx_hash, event_index, wallet_address, token_address, block_id, timestamp, event_type,
	quote_amount, token_amount, cost_usd, price_usd, multi_swapper_tx, arbitrage_tx, created_at`

// ImportWindow inserts new swaps and rebuilds the wallet_tokens rows of every pair that
// received one, in a single transaction. Pairs are locked in key order so concurrent
// imports touching the same pair rebuild from the complete history.
func (s *SwapStore) ImportWindow(ctx context.Context, swaps []*domain.Swap, rebuild storage.RebuildFunc) (n int, err error) {
	defer observe("swaps.import_window", time.Now(), &err)
	if len(swaps) == 0 {
		return 0, nil
	}
	for _, swap := range swaps {
		if swap == nil || swap.TxHash == "" || swap.WalletAddress == "" || swap.TokenAddress == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, swap := range swaps {
		batch.Queue(`
			INSERT INTO swaps (
				tx_hash, event_index, wallet_address, token_address, block_id, timestamp, event_type,
				quote_amount, token_amount, cost_usd, price_usd, multi_swapper_tx, arbitrage_tx
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (tx_hash, event_index) DO NOTHING
		`,
			swap.TxHash,
			swap.EventIndex,
			swap.WalletAddress,
			swap.TokenAddress,
			swap.BlockID,
			swap.Timestamp,
			swap.EventType,
			swap.QuoteAmount,
			swap.TokenAmount,
			swap.CostUSD,
			swap.PriceUSD,
			swap.MultiSwapperTx,
			swap.ArbitrageTx,
		)
	}

	touched := make(map[domain.PairKey]struct{})
	results := tx.SendBatch(ctx, batch)
	for _, swap := range swaps {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			if isForeignKeyError(err) {
				return 0, fmt.Errorf("swap %s references unknown wallet or token: %w", swap.TxHash, storage.ErrInvalidInput)
			}
			return 0, fmt.Errorf("insert swap: %w", err)
		}
		if tag.RowsAffected() == 1 {
			touched[swap.PairKey()] = struct{}{}
			n++
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("insert swaps: %w", err)
	}

	if rebuild != nil && len(touched) > 0 {
		if err := rebuildPairs(ctx, tx, touched, rebuild); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return n, nil
}

// rebuildPairs reads the full history of each pair inside tx and upserts its aggregate.
func rebuildPairs(ctx context.Context, tx pgx.Tx, touched map[domain.PairKey]struct{}, rebuild storage.RebuildFunc) error {
	keys := make([]domain.PairKey, 0, len(touched))
	for pk := range touched {
		keys = append(keys, pk)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].WalletAddress == keys[j].WalletAddress {
			return keys[i].TokenAddress < keys[j].TokenAddress
		}
		return keys[i].WalletAddress < keys[j].WalletAddress
	})

	wallets := make([]string, len(keys))
	tokens := make([]string, len(keys))
	locks := &pgx.Batch{}
	for i, pk := range keys {
		wallets[i], tokens[i] = pk.WalletAddress, pk.TokenAddress
		locks.Queue(`SELECT pg_advisory_xact_lock(hashtextextended($1 || ':' || $2, 0))`, pk.WalletAddress, pk.TokenAddress)
	}
	if _, err := sendBatch(ctx, tx, locks); err != nil {
		return fmt.Errorf("lock pairs: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT `+swapColumns+`
		FROM swaps
		WHERE (wallet_address, token_address) IN (
			SELECT * FROM unnest($1::text[], $2::text[])
		)
		ORDER BY wallet_address, token_address, timestamp, tx_hash, event_index
	`, wallets, tokens)
	if err != nil {
		return fmt.Errorf("load pair history: %w", err)
	}
	history, err := scanSwaps(rows)
	rows.Close()
	if err != nil {
		return err
	}

	byPair := make(map[domain.PairKey][]*domain.Swap, len(keys))
	for _, swap := range history {
		byPair[swap.PairKey()] = append(byPair[swap.PairKey()], swap)
	}

	upserts := &pgx.Batch{}
	for _, pk := range keys {
		wt := rebuild(pk, byPair[pk])
		if wt == nil {
			continue
		}
		queueWalletTokenUpsert(upserts, wt)
	}
	if _, err := sendBatch(ctx, tx, upserts); err != nil {
		return fmt.Errorf("upsert wallet tokens: %w", err)
	}
	return nil
}

// GetByPair retrieves all swaps of a wallet on a token, ordered by timestamp ASC.
func (s *SwapStore) GetByPair(ctx context.Context, walletAddress, tokenAddress string) (swaps []*domain.Swap, err error) {
	defer observe("swaps.get_by_pair", time.Now(), &err)

	query := `
		SELECT ` + swapColumns + `
		FROM swaps
		WHERE wallet_address = $1 AND token_address = $2
		ORDER BY timestamp ASC, tx_hash ASC, event_index ASC
	`
	rows, err := s.pool.Query(ctx, query, walletAddress, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("get swaps by pair: %w", err)
	}
	defer rows.Close()

	return scanSwaps(rows)
}

// ListMissingBlock retrieves up to limit distinct transactions whose swaps lack a block id.
func (s *SwapStore) ListMissingBlock(ctx context.Context, limit int) (hashes []string, err error) {
	defer observe("swaps.list_missing_block", time.Now(), &err)

	query := `
		SELECT DISTINCT tx_hash
		FROM swaps
		WHERE block_id IS NULL
		ORDER BY tx_hash
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("list swaps without block: %w", err)
	}
	defer rows.Close()

	hashes, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan tx hash rows: %w", err)
	}
	return hashes, nil
}

// UpdateBlocks sets block_id on every swap of each transaction.
func (s *SwapStore) UpdateBlocks(ctx context.Context, updates []storage.BlockUpdate) (err error) {
	defer observe("swaps.update_blocks", time.Now(), &err)
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`UPDATE swaps SET block_id = $2 WHERE tx_hash = $1`, u.TxHash, u.BlockID)
	}
	if _, err := sendBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("update blocks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// FirstTrades returns the wallet's lowest-block buy and sell of the token.
func (s *SwapStore) FirstTrades(ctx context.Context, walletAddress, tokenAddress string) (buy, sell *domain.TradeRef, err error) {
	defer observe("swaps.first_trades", time.Now(), &err)

	query := `
		SELECT DISTINCT ON (event_type) wallet_address, token_address, event_type, block_id, timestamp
		FROM swaps
		WHERE wallet_address = $1 AND token_address = $2 AND block_id IS NOT NULL
		ORDER BY event_type, block_id ASC, timestamp ASC
	`
	rows, err := s.pool.Query(ctx, query, walletAddress, tokenAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("get first trades: %w", err)
	}
	defer rows.Close()

	refs, err := scanTradeRefs(rows)
	if err != nil {
		return nil, nil, err
	}
	for i := range refs {
		switch refs[i].EventType {
		case domain.EventBuy:
			buy = &refs[i]
		case domain.EventSell:
			sell = &refs[i]
		}
	}
	return buy, sell, nil
}

// TradesInBlockRange returns trades of the token in [fromBlock, toBlock], excluding a wallet.
func (s *SwapStore) TradesInBlockRange(ctx context.Context, tokenAddress string, event domain.EventType, fromBlock, toBlock int64, excludeWallet string) (refs []domain.TradeRef, err error) {
	defer observe("swaps.trades_in_block_range", time.Now(), &err)

	query := `
		SELECT wallet_address, token_address, event_type, block_id, timestamp
		FROM swaps
		WHERE token_address = $1 AND event_type = $2
			AND block_id BETWEEN $3 AND $4
			AND wallet_address <> $5
		ORDER BY block_id ASC, wallet_address ASC
	`
	rows, err := s.pool.Query(ctx, query, tokenAddress, event, fromBlock, toBlock, excludeWallet)
	if err != nil {
		return nil, fmt.Errorf("get trades in block range: %w", err)
	}
	defer rows.Close()

	return scanTradeRefs(rows)
}

// scanSwaps scans multiple rows into a slice of Swap.
func scanSwaps(rows pgx.Rows) ([]*domain.Swap, error) {
	var swaps []*domain.Swap

	for rows.Next() {
		var swap domain.Swap

		err := rows.Scan(
			&swap.TxHash,
			&swap.EventIndex,
			&swap.WalletAddress,
			&swap.TokenAddress,
			&swap.BlockID,
			&swap.Timestamp,
			&swap.EventType,
			&swap.QuoteAmount,
			&swap.TokenAmount,
			&swap.CostUSD,
			&swap.PriceUSD,
			&swap.MultiSwapperTx,
			&swap.ArbitrageTx,
			&swap.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan swap row: %w", err)
		}
		swap.Timestamp = swap.Timestamp.UTC()

		swaps = append(swaps, &swap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap rows: %w", err)
	}

	return swaps, nil
}

func scanTradeRefs(rows pgx.Rows) ([]domain.TradeRef, error) {
	var refs []domain.TradeRef
	for rows.Next() {
		var ref domain.TradeRef
		if err := rows.Scan(&ref.WalletAddress, &ref.TokenAddress, &ref.EventType, &ref.BlockID, &ref.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		ref.Timestamp = ref.Timestamp.UTC()
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return refs, nil
}
