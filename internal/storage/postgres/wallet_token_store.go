package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// WalletTokenStore implements storage.WalletTokenStore using PostgreSQL.
// Rows are written by SwapStore.ImportWindow.
type WalletTokenStore struct {
	pool *Pool
}

// NewWalletTokenStore creates a new WalletTokenStore.
func NewWalletTokenStore(pool *Pool) *WalletTokenStore {
	return &WalletTokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletTokenStore = (*WalletTokenStore)(nil)

const walletTokenColumns = `
	wallet_address, token_address, total_buys_count, total_sales_count,
	total_buy_amount_usd, total_buy_amount_token, total_sell_amount_usd, total_sell_amount_token,
	first_buy_price_usd, first_buy_timestamp, first_sell_price_usd, first_sell_timestamp,
	last_activity_timestamp, total_profit_usd, total_profit_percent, first_buy_sell_duration,
	total_swaps_from_txs_with_mt_3_swappers, total_swaps_from_arbitrage_swap_events, updated_at`

// queueWalletTokenUpsert replaces the aggregate on (wallet_address, token_address).
func queueWalletTokenUpsert(batch *pgx.Batch, wt *domain.WalletToken) {
	batch.Queue(`
		INSERT INTO wallet_tokens (`+walletTokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now())
		ON CONFLICT (wallet_address, token_address) DO UPDATE SET
			total_buys_count                        = EXCLUDED.total_buys_count,
			total_sales_count                       = EXCLUDED.total_sales_count,
			total_buy_amount_usd                    = EXCLUDED.total_buy_amount_usd,
			total_buy_amount_token                  = EXCLUDED.total_buy_amount_token,
			total_sell_amount_usd                   = EXCLUDED.total_sell_amount_usd,
			total_sell_amount_token                 = EXCLUDED.total_sell_amount_token,
			first_buy_price_usd                     = EXCLUDED.first_buy_price_usd,
			first_buy_timestamp                     = EXCLUDED.first_buy_timestamp,
			first_sell_price_usd                    = EXCLUDED.first_sell_price_usd,
			first_sell_timestamp                    = EXCLUDED.first_sell_timestamp,
			last_activity_timestamp                 = EXCLUDED.last_activity_timestamp,
			total_profit_usd                        = EXCLUDED.total_profit_usd,
			total_profit_percent                    = EXCLUDED.total_profit_percent,
			first_buy_sell_duration                 = EXCLUDED.first_buy_sell_duration,
			total_swaps_from_txs_with_mt_3_swappers = EXCLUDED.total_swaps_from_txs_with_mt_3_swappers,
			total_swaps_from_arbitrage_swap_events  = EXCLUDED.total_swaps_from_arbitrage_swap_events,
			updated_at                              = EXCLUDED.updated_at
	`,
		wt.WalletAddress,
		wt.TokenAddress,
		wt.TotalBuysCount,
		wt.TotalSalesCount,
		wt.TotalBuyAmountUSD,
		wt.TotalBuyAmountToken,
		wt.TotalSellAmountUSD,
		wt.TotalSellAmountToken,
		wt.FirstBuyPriceUSD,
		wt.FirstBuyTimestamp,
		wt.FirstSellPriceUSD,
		wt.FirstSellTimestamp,
		wt.LastActivityTimestamp,
		wt.TotalProfitUSD,
		wt.TotalProfitPercent,
		wt.FirstBuySellDuration,
		wt.TotalSwapsFromTxsWithMt3Swappers,
		wt.TotalSwapsFromArbitrageSwapEvents,
	)
}

// GetByWallets retrieves all aggregates of the given wallets.
func (s *WalletTokenStore) GetByWallets(ctx context.Context, addresses []string) (rows []*domain.WalletToken, err error) {
	defer observe("wallet_tokens.get_by_wallets", time.Now(), &err)
	if len(addresses) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + walletTokenColumns + `
		FROM wallet_tokens
		WHERE wallet_address = ANY($1)
		ORDER BY wallet_address, token_address
	`
	result, err := s.pool.Query(ctx, query, addresses)
	if err != nil {
		return nil, fmt.Errorf("get wallet tokens: %w", err)
	}
	defer result.Close()

	return scanWalletTokens(result)
}

// GetTraded retrieves aggregates with a buy and a sell, most recent activity first.
func (s *WalletTokenStore) GetTraded(ctx context.Context, walletAddress string, limit int) (rows []*domain.WalletToken, err error) {
	defer observe("wallet_tokens.get_traded", time.Now(), &err)

	query := `
		SELECT ` + walletTokenColumns + `
		FROM wallet_tokens
		WHERE wallet_address = $1 AND total_buys_count > 0 AND total_sales_count > 0
		ORDER BY last_activity_timestamp DESC NULLS LAST, token_address ASC
		LIMIT $2
	`
	result, err := s.pool.Query(ctx, query, walletAddress, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("get traded tokens: %w", err)
	}
	defer result.Close()

	return scanWalletTokens(result)
}

func scanWalletTokens(rows pgx.Rows) ([]*domain.WalletToken, error) {
	var result []*domain.WalletToken
	for rows.Next() {
		var wt domain.WalletToken
		err := rows.Scan(
			&wt.WalletAddress,
			&wt.TokenAddress,
			&wt.TotalBuysCount,
			&wt.TotalSalesCount,
			&wt.TotalBuyAmountUSD,
			&wt.TotalBuyAmountToken,
			&wt.TotalSellAmountUSD,
			&wt.TotalSellAmountToken,
			&wt.FirstBuyPriceUSD,
			&wt.FirstBuyTimestamp,
			&wt.FirstSellPriceUSD,
			&wt.FirstSellTimestamp,
			&wt.LastActivityTimestamp,
			&wt.TotalProfitUSD,
			&wt.TotalProfitPercent,
			&wt.FirstBuySellDuration,
			&wt.TotalSwapsFromTxsWithMt3Swappers,
			&wt.TotalSwapsFromArbitrageSwapEvents,
			&wt.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan wallet token row: %w", err)
		}
		result = append(result, &wt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet token rows: %w", err)
	}
	return result, nil
}
