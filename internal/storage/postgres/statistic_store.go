package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// StatisticStore implements storage.StatisticStore using PostgreSQL.
type StatisticStore struct {
	pool *Pool
}

// NewStatisticStore creates a new StatisticStore.
func NewStatisticStore(pool *Pool) *StatisticStore {
	return &StatisticStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StatisticStore = (*StatisticStore)(nil)

const statisticColumns = `
	wallet_address, period, winrate,
	total_token_buy_amount_usd, total_token_sell_amount_usd, total_profit_usd, total_profit_multiplier,
	total_token, total_token_buys, total_token_sales, token_with_buy_and_sell, token_with_buy,
	token_sell_without_buy, token_buy_without_sell, token_with_sell_amount_gt_buy_amount,
	token_avg_buy_amount, token_median_buy_amount, token_first_buy_avg_price_usd,
	token_first_buy_median_price_usd, token_avg_profit_usd,
	token_buy_sell_duration_avg, token_buy_sell_duration_median, first_transaction_timestamp,
	pnl_lt_minus_dot5_num, pnl_minus_dot5_0x_num, pnl_lt_2x_num, pnl_2x_5x_num, pnl_gt_5x_num,
	pnl_lt_minus_dot5_percent, pnl_minus_dot5_0x_percent, pnl_lt_2x_percent, pnl_2x_5x_percent,
	pnl_gt_5x_percent,
	total_swaps_from_arbitrage_swap_events, total_swaps_from_txs_with_mt_3_swappers,
	total_buys_and_sales_count, updated_at`

// UpsertBulk writes statistics atomically, replacing rows on (wallet_address, period).
func (s *StatisticStore) UpsertBulk(ctx context.Context, stats []*domain.WalletStatistic) (err error) {
	defer observe("wallet_statistics.upsert_bulk", time.Now(), &err)
	if len(stats) == 0 {
		return nil
	}
	for _, st := range stats {
		if st == nil || st.WalletAddress == "" || !st.Period.IsValid() {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, st := range stats {
		batch.Queue(`
			INSERT INTO wallet_statistics (`+statisticColumns+`)
			VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
				$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34,
				$35, $36, now()
			)
			ON CONFLICT (wallet_address, period) DO UPDATE SET
				winrate                                 = EXCLUDED.winrate,
				total_token_buy_amount_usd              = EXCLUDED.total_token_buy_amount_usd,
				total_token_sell_amount_usd             = EXCLUDED.total_token_sell_amount_usd,
				total_profit_usd                        = EXCLUDED.total_profit_usd,
				total_profit_multiplier                 = EXCLUDED.total_profit_multiplier,
				total_token                             = EXCLUDED.total_token,
				total_token_buys                        = EXCLUDED.total_token_buys,
				total_token_sales                       = EXCLUDED.total_token_sales,
				token_with_buy_and_sell                 = EXCLUDED.token_with_buy_and_sell,
				token_with_buy                          = EXCLUDED.token_with_buy,
				token_sell_without_buy                  = EXCLUDED.token_sell_without_buy,
				token_buy_without_sell                  = EXCLUDED.token_buy_without_sell,
				token_with_sell_amount_gt_buy_amount    = EXCLUDED.token_with_sell_amount_gt_buy_amount,
				token_avg_buy_amount                    = EXCLUDED.token_avg_buy_amount,
				token_median_buy_amount                 = EXCLUDED.token_median_buy_amount,
				token_first_buy_avg_price_usd           = EXCLUDED.token_first_buy_avg_price_usd,
				token_first_buy_median_price_usd        = EXCLUDED.token_first_buy_median_price_usd,
				token_avg_profit_usd                    = EXCLUDED.token_avg_profit_usd,
				token_buy_sell_duration_avg             = EXCLUDED.token_buy_sell_duration_avg,
				token_buy_sell_duration_median          = EXCLUDED.token_buy_sell_duration_median,
				first_transaction_timestamp             = EXCLUDED.first_transaction_timestamp,
				pnl_lt_minus_dot5_num                   = EXCLUDED.pnl_lt_minus_dot5_num,
				pnl_minus_dot5_0x_num                   = EXCLUDED.pnl_minus_dot5_0x_num,
				pnl_lt_2x_num                           = EXCLUDED.pnl_lt_2x_num,
				pnl_2x_5x_num                           = EXCLUDED.pnl_2x_5x_num,
				pnl_gt_5x_num                           = EXCLUDED.pnl_gt_5x_num,
				pnl_lt_minus_dot5_percent               = EXCLUDED.pnl_lt_minus_dot5_percent,
				pnl_minus_dot5_0x_percent               = EXCLUDED.pnl_minus_dot5_0x_percent,
				pnl_lt_2x_percent                       = EXCLUDED.pnl_lt_2x_percent,
				pnl_2x_5x_percent                       = EXCLUDED.pnl_2x_5x_percent,
				pnl_gt_5x_percent                       = EXCLUDED.pnl_gt_5x_percent,
				total_swaps_from_arbitrage_swap_events  = EXCLUDED.total_swaps_from_arbitrage_swap_events,
				total_swaps_from_txs_with_mt_3_swappers = EXCLUDED.total_swaps_from_txs_with_mt_3_swappers,
				total_buys_and_sales_count              = EXCLUDED.total_buys_and_sales_count,
				updated_at                              = EXCLUDED.updated_at
		`,
			st.WalletAddress,
			st.Period,
			st.Winrate,
			st.TotalTokenBuyAmountUSD,
			st.TotalTokenSellAmountUSD,
			st.TotalProfitUSD,
			st.TotalProfitMultiplier,
			st.TotalToken,
			st.TotalTokenBuys,
			st.TotalTokenSales,
			st.TokenWithBuyAndSell,
			st.TokenWithBuy,
			st.TokenSellWithoutBuy,
			st.TokenBuyWithoutSell,
			st.TokenWithSellAmountGtBuyAmount,
			st.TokenAvgBuyAmount,
			st.TokenMedianBuyAmount,
			st.TokenFirstBuyAvgPriceUSD,
			st.TokenFirstBuyMedianPriceUSD,
			st.TokenAvgProfitUSD,
			st.TokenBuySellDurationAvg,
			st.TokenBuySellDurationMedian,
			st.FirstTransactionTimestamp,
			st.PnlLtMinusDot5Num,
			st.PnlMinusDot5To0xNum,
			st.PnlLt2xNum,
			st.Pnl2xTo5xNum,
			st.PnlGt5xNum,
			st.PnlLtMinusDot5Percent,
			st.PnlMinusDot5To0xPercent,
			st.PnlLt2xPercent,
			st.Pnl2xTo5xPercent,
			st.PnlGt5xPercent,
			st.TotalSwapsFromArbitrageSwapEvents,
			st.TotalSwapsFromTxsWithMt3Swappers,
			st.TotalBuysAndSalesCount(),
		)
	}
	if _, err := sendBatch(ctx, tx, batch); err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("statistic references unknown wallet: %w", storage.ErrInvalidInput)
		}
		return fmt.Errorf("upsert statistics: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get retrieves one statistic. Returns ErrNotFound if not exists.
func (s *StatisticStore) Get(ctx context.Context, walletAddress string, period domain.Period) (st *domain.WalletStatistic, err error) {
	defer observe("wallet_statistics.get", time.Now(), &err)

	query := `
		SELECT ` + statisticColumns + `
		FROM wallet_statistics
		WHERE wallet_address = $1 AND period = $2
	`
	st, err = scanStatistic(s.pool.QueryRow(ctx, query, walletAddress, period))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get statistic: %w", err)
	}
	return st, nil
}

// GetByWallets retrieves the statistics of a period for the given wallets.
func (s *StatisticStore) GetByWallets(ctx context.Context, period domain.Period, addresses []string) (stats []*domain.WalletStatistic, err error) {
	defer observe("wallet_statistics.get_by_wallets", time.Now(), &err)
	if len(addresses) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + statisticColumns + `
		FROM wallet_statistics
		WHERE period = $1 AND wallet_address = ANY($2)
		ORDER BY wallet_address
	`
	rows, err := s.pool.Query(ctx, query, period, addresses)
	if err != nil {
		return nil, fmt.Errorf("get statistics by wallets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		st, err := scanStatistic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan statistic row: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statistic rows: %w", err)
	}
	return stats, nil
}

// DeleteByPeriod removes every statistic of a period.
func (s *StatisticStore) DeleteByPeriod(ctx context.Context, period domain.Period) (err error) {
	defer observe("wallet_statistics.delete_by_period", time.Now(), &err)

	if _, err := s.pool.Exec(ctx, `DELETE FROM wallet_statistics WHERE period = $1`, period); err != nil {
		return fmt.Errorf("delete statistics of %s: %w", period, err)
	}
	return nil
}

// FindLargeBuyCandidates returns wallets meeting the criteria, excluding bots and scammers.
func (s *StatisticStore) FindLargeBuyCandidates(ctx context.Context, c storage.LargeBuyCriteria) (wallets []string, err error) {
	defer observe("wallet_statistics.find_large_buy_candidates", time.Now(), &err)

	query := `
		SELECT a.wallet_address
		FROM wallet_statistics a
		JOIN wallet_statistics m ON m.wallet_address = a.wallet_address AND m.period = $1
		LEFT JOIN wallet_details d ON d.wallet_address = a.wallet_address
		WHERE a.period = $2
			AND a.winrate >= $3
			AND a.total_profit_usd >= $4
			AND a.total_profit_multiplier >= $5
			AND a.total_token >= $6
			AND a.token_avg_buy_amount BETWEEN $7 AND $8
			AND a.token_buy_sell_duration_median >= $9
			AND m.total_token >= $10
			AND NOT COALESCE(d.is_bot, FALSE)
			AND NOT COALESCE(d.is_scammer, FALSE)
		ORDER BY a.wallet_address
	`
	rows, err := s.pool.Query(ctx, query,
		domain.Period30d,
		domain.PeriodAll,
		c.MinWinrate,
		c.MinProfitUSD,
		c.MinMultiplier,
		c.MinTotalToken,
		c.MinAvgBuyAmount,
		c.MaxAvgBuyAmount,
		c.MinMedianDuration,
		c.Min30dTotalToken,
	)
	if err != nil {
		return nil, fmt.Errorf("find large-buy candidates: %w", err)
	}
	defer rows.Close()

	wallets, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan candidate rows: %w", err)
	}
	return wallets, nil
}

func scanStatistic(row pgx.Row) (*domain.WalletStatistic, error) {
	var (
		st           domain.WalletStatistic
		buysAndSales int
	)
	err := row.Scan(
		&st.WalletAddress,
		&st.Period,
		&st.Winrate,
		&st.TotalTokenBuyAmountUSD,
		&st.TotalTokenSellAmountUSD,
		&st.TotalProfitUSD,
		&st.TotalProfitMultiplier,
		&st.TotalToken,
		&st.TotalTokenBuys,
		&st.TotalTokenSales,
		&st.TokenWithBuyAndSell,
		&st.TokenWithBuy,
		&st.TokenSellWithoutBuy,
		&st.TokenBuyWithoutSell,
		&st.TokenWithSellAmountGtBuyAmount,
		&st.TokenAvgBuyAmount,
		&st.TokenMedianBuyAmount,
		&st.TokenFirstBuyAvgPriceUSD,
		&st.TokenFirstBuyMedianPriceUSD,
		&st.TokenAvgProfitUSD,
		&st.TokenBuySellDurationAvg,
		&st.TokenBuySellDurationMedian,
		&st.FirstTransactionTimestamp,
		&st.PnlLtMinusDot5Num,
		&st.PnlMinusDot5To0xNum,
		&st.PnlLt2xNum,
		&st.Pnl2xTo5xNum,
		&st.PnlGt5xNum,
		&st.PnlLtMinusDot5Percent,
		&st.PnlMinusDot5To0xPercent,
		&st.PnlLt2xPercent,
		&st.Pnl2xTo5xPercent,
		&st.PnlGt5xPercent,
		&st.TotalSwapsFromArbitrageSwapEvents,
		&st.TotalSwapsFromTxsWithMt3Swappers,
		&buysAndSales,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
