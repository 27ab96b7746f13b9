package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/stats"
	"solana-wallet-analytics/internal/storage"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testSwap(tx string, idx int, wallet, token string, event domain.EventType, offset time.Duration, cost, amount string, block *int64) *domain.Swap {
	return &domain.Swap{
		TxHash:        tx,
		EventIndex:    idx,
		WalletAddress: wallet,
		TokenAddress:  token,
		BlockID:       block,
		Timestamp:     t0.Add(offset),
		EventType:     event,
		QuoteAmount:   dec("1"),
		TokenAmount:   dec(amount),
		CostUSD:       dec(cost),
		PriceUSD:      ptr(dec(cost).Div(dec(amount))),
	}
}

func TestSwapStore_ImportWindowRebuildsPairs(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedParties(t, ctx, pool, []string{"W1", "W2"}, []string{"T1"})
	swaps := NewSwapStore(pool)
	walletTokens := NewWalletTokenStore(pool)

	n, err := swaps.ImportWindow(ctx, []*domain.Swap{
		testSwap("tx1", 0, "W1", "T1", domain.EventBuy, 0, "10", "100", nil),
		testSwap("tx2", 0, "W2", "T1", domain.EventBuy, time.Minute, "5", "50", nil),
	}, stats.CalculateTokenStats)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// second window: one replayed row, one new sell
	n, err = swaps.ImportWindow(ctx, []*domain.Swap{
		testSwap("tx1", 0, "W1", "T1", domain.EventBuy, 0, "10", "100", nil),
		testSwap("tx3", 0, "W1", "T1", domain.EventSell, time.Hour, "25", "100", nil),
	}, stats.CalculateTokenStats)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := walletTokens.GetByWallets(ctx, []string{"W1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	wt := rows[0]
	assert.Equal(t, 1, wt.TotalBuysCount)
	assert.Equal(t, 1, wt.TotalSalesCount)
	assert.True(t, wt.TotalProfitUSD.Equal(dec("15")), "profit %s", wt.TotalProfitUSD)
	require.NotNil(t, wt.TotalProfitPercent)
	assert.True(t, wt.TotalProfitPercent.Equal(dec("150")))
	require.NotNil(t, wt.FirstBuySellDuration)
	assert.Equal(t, int64(3600), *wt.FirstBuySellDuration)

	history, err := swaps.GetByPair(ctx, "W1", "T1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.EventBuy, history[0].EventType)
	assert.True(t, history[0].Timestamp.Equal(t0))
	assert.Equal(t, domain.EventSell, history[1].EventType)
}

func TestSwapStore_ImportWindowUnknownWallet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedParties(t, ctx, pool, nil, []string{"T1"})
	swaps := NewSwapStore(pool)

	_, err := swaps.ImportWindow(ctx, []*domain.Swap{
		testSwap("tx1", 0, "ghost", "T1", domain.EventBuy, 0, "10", "100", nil),
	}, stats.CalculateTokenStats)
	require.ErrorIs(t, err, storage.ErrInvalidInput)

	history, err := swaps.GetByPair(ctx, "ghost", "T1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSwapStore_BlockBackfill(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedParties(t, ctx, pool, []string{"W1"}, []string{"T1"})
	swaps := NewSwapStore(pool)

	_, err := swaps.ImportWindow(ctx, []*domain.Swap{
		testSwap("txA", 0, "W1", "T1", domain.EventBuy, 0, "10", "100", nil),
		testSwap("txA", 1, "W1", "T1", domain.EventSell, 0, "10", "100", nil),
		testSwap("txB", 0, "W1", "T1", domain.EventBuy, time.Minute, "10", "100", ptr(int64(7))),
		testSwap("txC", 0, "W1", "T1", domain.EventBuy, 2*time.Minute, "10", "100", nil),
	}, stats.CalculateTokenStats)
	require.NoError(t, err)

	pending, err := swaps.ListMissingBlock(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"txA", "txC"}, pending)

	pending, err = swaps.ListMissingBlock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"txA"}, pending)

	require.NoError(t, swaps.UpdateBlocks(ctx, []storage.BlockUpdate{{TxHash: "txA", BlockID: 42}}))

	pending, err = swaps.ListMissingBlock(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"txC"}, pending)

	history, err := swaps.GetByPair(ctx, "W1", "T1")
	require.NoError(t, err)
	for _, s := range history {
		if s.TxHash == "txA" {
			require.NotNil(t, s.BlockID)
			assert.Equal(t, int64(42), *s.BlockID)
		}
	}
}

func TestSwapStore_TradeReader(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedParties(t, ctx, pool, []string{"target", "n1", "n2"}, []string{"T1"})
	swaps := NewSwapStore(pool)

	_, err := swaps.ImportWindow(ctx, []*domain.Swap{
		testSwap("b1", 0, "target", "T1", domain.EventBuy, 0, "10", "100", ptr(int64(100))),
		testSwap("b2", 0, "target", "T1", domain.EventBuy, time.Minute, "10", "100", ptr(int64(90))),
		testSwap("s1", 0, "target", "T1", domain.EventSell, time.Hour, "12", "200", ptr(int64(500))),
		testSwap("nb", 0, "n1", "T1", domain.EventBuy, 0, "10", "100", ptr(int64(92))),
		testSwap("far", 0, "n2", "T1", domain.EventBuy, 0, "10", "100", ptr(int64(200))),
		testSwap("ns", 0, "n1", "T1", domain.EventSell, time.Hour, "12", "100", ptr(int64(501))),
	}, stats.CalculateTokenStats)
	require.NoError(t, err)

	buy, sell, err := swaps.FirstTrades(ctx, "target", "T1")
	require.NoError(t, err)
	require.NotNil(t, buy)
	require.NotNil(t, sell)
	assert.Equal(t, int64(90), buy.BlockID)
	assert.Equal(t, int64(500), sell.BlockID)

	near, err := swaps.TradesInBlockRange(ctx, "T1", domain.EventBuy, 87, 93, "target")
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "n1", near[0].WalletAddress)
	assert.Equal(t, int64(92), near[0].BlockID)

	buy, sell, err = swaps.FirstTrades(ctx, "n2", "T1")
	require.NoError(t, err)
	assert.NotNil(t, buy)
	assert.Nil(t, sell)
}

func TestSwapStore_FirstTradesIgnoresPendingBlocks(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedParties(t, ctx, pool, []string{"W1"}, []string{"T1"})
	swaps := NewSwapStore(pool)

	_, err := swaps.ImportWindow(ctx, []*domain.Swap{
		testSwap("p1", 0, "W1", "T1", domain.EventBuy, 0, "10", "100", nil),
		testSwap("p2", 0, "W1", "T1", domain.EventBuy, time.Minute, "10", "100", ptr(int64(120))),
		testSwap("p3", 0, "W1", "T1", domain.EventSell, time.Hour, "12", "100", nil),
	}, stats.CalculateTokenStats)
	require.NoError(t, err)

	buy, sell, err := swaps.FirstTrades(ctx, "W1", "T1")
	require.NoError(t, err)
	require.NotNil(t, buy)
	assert.Equal(t, int64(120), buy.BlockID)
	assert.Nil(t, sell)
}
