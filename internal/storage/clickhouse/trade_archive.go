package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/observability"
	"solana-wallet-analytics/internal/storage"
)

// TradeArchive implements storage.TradeArchive and storage.TradeReader on the
// ClickHouse trades table. Re-inserted events collapse on (tx_hash, event_index),
// so reads use FINAL.
type TradeArchive struct {
	conn *Conn
}

// NewTradeArchive creates a new TradeArchive.
func NewTradeArchive(conn *Conn) *TradeArchive {
	return &TradeArchive{conn: conn}
}

// Compile-time interface checks.
var (
	_ storage.TradeArchive = (*TradeArchive)(nil)
	_ storage.TradeReader  = (*TradeArchive)(nil)
)

// InsertBulk appends trade events in one batch.
func (a *TradeArchive) InsertBulk(ctx context.Context, swaps []*domain.Swap) (err error) {
	defer observe("trades.insert_bulk", time.Now(), &err)
	if len(swaps) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO trades (
			tx_hash, event_index, wallet_address, token_address, block_id, timestamp, event_type,
			quote_amount, token_amount, cost_usd, multi_swapper_tx, arbitrage_tx
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, s := range swaps {
		err = batch.Append(
			s.TxHash, uint32(s.EventIndex), s.WalletAddress, s.TokenAddress,
			s.BlockID, s.Timestamp.UTC(), string(s.EventType),
			s.QuoteAmount, s.TokenAmount, s.CostUSD,
			s.MultiSwapperTx, s.ArbitrageTx,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// FirstTrades returns the wallet's lowest-block buy and sell of the token.
func (a *TradeArchive) FirstTrades(ctx context.Context, walletAddress, tokenAddress string) (buy, sell *domain.TradeRef, err error) {
	defer observe("trades.first_trades", time.Now(), &err)

	query := `
		SELECT wallet_address, token_address, event_type, assumeNotNull(block_id), timestamp
		FROM trades FINAL
		WHERE wallet_address = ? AND token_address = ? AND block_id IS NOT NULL
		ORDER BY block_id ASC, timestamp ASC
		LIMIT 1 BY event_type
	`
	rows, err := a.conn.Query(ctx, query, walletAddress, tokenAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("query first trades: %w", err)
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
func (a *TradeArchive) TradesInBlockRange(ctx context.Context, tokenAddress string, event domain.EventType, fromBlock, toBlock int64, excludeWallet string) (refs []domain.TradeRef, err error) {
	defer observe("trades.in_block_range", time.Now(), &err)

	query := `
		SELECT wallet_address, token_address, event_type, assumeNotNull(block_id) AS block, timestamp
		FROM trades FINAL
		WHERE token_address = ? AND event_type = ?
			AND block_id >= ? AND block_id <= ?
			AND wallet_address != ?
		ORDER BY block ASC, wallet_address ASC
	`
	rows, err := a.conn.Query(ctx, query, tokenAddress, string(event), fromBlock, toBlock, excludeWallet)
	if err != nil {
		return nil, fmt.Errorf("query trades in block range: %w", err)
	}
	defer rows.Close()

	return scanTradeRefs(rows)
}

// chRows is the subset of driver.Rows the scanners need.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTradeRefs(rows chRows) ([]domain.TradeRef, error) {
	var refs []domain.TradeRef
	for rows.Next() {
		var (
			ref   domain.TradeRef
			event string
		)
		if err := rows.Scan(&ref.WalletAddress, &ref.TokenAddress, &event, &ref.BlockID, &ref.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		ref.EventType = domain.EventType(event)
		ref.Timestamp = ref.Timestamp.UTC()
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return refs, nil
}

func observe(operation string, began time.Time, errp *error) {
	observability.RecordDBQuery("clickhouse", operation, time.Since(began).Seconds(), *errp)
}
