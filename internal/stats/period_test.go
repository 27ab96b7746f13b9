package stats

import (
	"testing"
	"time"

	"solana-wallet-analytics/internal/domain"
)

func TestFilterByPeriod(t *testing.T) {
	now := baseTime
	day := 24 * time.Hour

	tokens := []*domain.WalletToken{
		{TokenAddress: "recent-buy", FirstBuyTimestamp: at(-day)},
		{TokenAddress: "recent-buy-recent-sell", FirstBuyTimestamp: at(-2 * day), FirstSellTimestamp: at(-day)},
		{TokenAddress: "old-buy-recent-sell", FirstBuyTimestamp: at(-20 * day), FirstSellTimestamp: at(-day)},
		{TokenAddress: "old-buy-old-sell", FirstBuyTimestamp: at(-20 * day), FirstSellTimestamp: at(-10 * day)},
		{TokenAddress: "old-buy", FirstBuyTimestamp: at(-20 * day)},
		{TokenAddress: "recent-sell-only", FirstSellTimestamp: at(-day)},
	}

	got := FilterByPeriod(tokens, 7, now)

	want := map[string]bool{
		"recent-buy":             true,
		"recent-buy-recent-sell": true,
		"old-buy-recent-sell":    true,
		"recent-sell-only":       true,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(got))
	}
	for _, wt := range got {
		if !want[wt.TokenAddress] {
			t.Errorf("unexpected token %s in period", wt.TokenAddress)
		}
	}

	if all := FilterByPeriod(tokens, 0, now); len(all) != len(tokens) {
		t.Errorf("all-time should keep every token, got %d", len(all))
	}
}

func TestFilterByPeriod_BoundaryIsInclusive(t *testing.T) {
	tokens := []*domain.WalletToken{{TokenAddress: "edge", FirstBuyTimestamp: at(-7 * 24 * time.Hour)}}

	if got := FilterByPeriod(tokens, 7, baseTime); len(got) != 1 {
		t.Errorf("expected token at the threshold to be kept, got %d", len(got))
	}
}

func TestAggregatePeriod_Winrate(t *testing.T) {
	tokens := []*domain.WalletToken{
		boughtToken("A", "100", "110"), // profit 10
		boughtToken("B", "100", "95"),  // profit -5
	}

	st := AggregatePeriod("W", domain.PeriodAll, tokens)

	if st.Winrate == nil || !st.Winrate.Equal(dec("50")) {
		t.Errorf("expected winrate 50, got %v", st.Winrate)
	}
	if !st.TotalProfitUSD.Equal(dec("5")) {
		t.Errorf("expected total profit 5, got %s", st.TotalProfitUSD)
	}
	if st.TotalProfitMultiplier == nil || !st.TotalProfitMultiplier.Equal(dec("2.5")) {
		t.Errorf("expected multiplier 2.5, got %v", st.TotalProfitMultiplier)
	}
}

func TestAggregatePeriod_Buckets(t *testing.T) {
	tokens := []*domain.WalletToken{
		boughtToken("lt-minus-half", "100", "50"), // -50%
		boughtToken("minus-half-0", "100", "100"), // 0%
		boughtToken("lt-2x", "100", "300"),        // 200%
		boughtToken("2x-5x", "100", "600"),        // 500%
		boughtToken("gt-5x", "100", "601"),        // 501%
		boughtToken("open", "100", ""),            // -100%
	}

	st := AggregatePeriod("W", domain.PeriodAll, tokens)

	checks := []struct {
		name string
		got  int
		want int
	}{
		{"lt -50%", st.PnlLtMinusDot5Num, 2},
		{"-50%..0%", st.PnlMinusDot5To0xNum, 1},
		{"0%..200%", st.PnlLt2xNum, 1},
		{"200%..500%", st.Pnl2xTo5xNum, 1},
		{"gt 500%", st.PnlGt5xNum, 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("bucket %s: expected %d, got %d", c.name, c.want, c.got)
		}
	}

	if st.PnlLtMinusDot5Percent == nil ||
		!st.PnlLtMinusDot5Percent.Equal(dec("33.33333333333333333333")) {
		t.Errorf("unexpected bucket percent %v", st.PnlLtMinusDot5Percent)
	}
	if st.TokenBuyWithoutSell != 1 || st.TokenWithBuyAndSell != 5 {
		t.Errorf("unexpected buy/sell counts %d/%d", st.TokenBuyWithoutSell, st.TokenWithBuyAndSell)
	}
}

func TestAggregatePeriod_Counts(t *testing.T) {
	sellOnly := CalculateTokenStats(domain.PairKey{WalletAddress: "W", TokenAddress: "S"},
		[]*domain.Swap{swap(domain.EventSell, 0, "10", "100")})
	oversold := CalculateTokenStats(domain.PairKey{WalletAddress: "W", TokenAddress: "O"}, []*domain.Swap{
		swap(domain.EventBuy, 0, "10", "100"),
		swap(domain.EventSell, time.Minute, "30", "300"),
	})

	st := AggregatePeriod("W", domain.Period7d, []*domain.WalletToken{sellOnly, oversold})

	if st.TotalToken != 2 || st.TokenWithBuy != 1 || st.TokenSellWithoutBuy != 1 {
		t.Errorf("unexpected counts total=%d withBuy=%d sellWithoutBuy=%d",
			st.TotalToken, st.TokenWithBuy, st.TokenSellWithoutBuy)
	}
	if st.TokenWithSellAmountGtBuyAmount != 1 {
		t.Errorf("expected 1 oversold token, got %d", st.TokenWithSellAmountGtBuyAmount)
	}
	if st.TotalTokenBuys != 1 || st.TotalTokenSales != 2 {
		t.Errorf("unexpected swap counts %d/%d", st.TotalTokenBuys, st.TotalTokenSales)
	}
	if st.TotalBuysAndSalesCount() != 3 {
		t.Errorf("expected 3 buys and sales, got %d", st.TotalBuysAndSalesCount())
	}
	if st.FirstTransactionTimestamp == nil || !st.FirstTransactionTimestamp.Equal(baseTime) {
		t.Errorf("unexpected first transaction %v", st.FirstTransactionTimestamp)
	}
}

func TestAggregatePeriod_AveragesAndMedians(t *testing.T) {
	a := boughtToken("A", "100", "150")
	b := boughtToken("B", "300", "")
	c := boughtToken("C", "200", "100")

	st := AggregatePeriod("W", domain.PeriodAll, []*domain.WalletToken{a, b, c})

	if st.TokenAvgBuyAmount == nil || !st.TokenAvgBuyAmount.Equal(dec("200")) {
		t.Errorf("expected avg buy 200, got %v", st.TokenAvgBuyAmount)
	}
	if st.TokenMedianBuyAmount == nil || !st.TokenMedianBuyAmount.Equal(dec("200")) {
		t.Errorf("expected median buy 200, got %v", st.TokenMedianBuyAmount)
	}
	// durations only on A and C, 60s each, averaged over tokens with buy and sell
	if st.TokenBuySellDurationAvg == nil || !st.TokenBuySellDurationAvg.Equal(dec("60")) {
		t.Errorf("expected avg duration 60, got %v", st.TokenBuySellDurationAvg)
	}
	if st.TokenBuySellDurationMedian == nil || !st.TokenBuySellDurationMedian.Equal(dec("60")) {
		t.Errorf("expected median duration 60, got %v", st.TokenBuySellDurationMedian)
	}
	// first buy prices 1, 3, 2
	if st.TokenFirstBuyAvgPriceUSD == nil || !st.TokenFirstBuyAvgPriceUSD.Equal(dec("2")) {
		t.Errorf("expected avg first buy price 2, got %v", st.TokenFirstBuyAvgPriceUSD)
	}
	if st.TokenFirstBuyMedianPriceUSD == nil || !st.TokenFirstBuyMedianPriceUSD.Equal(dec("2")) {
		t.Errorf("expected median first buy price 2, got %v", st.TokenFirstBuyMedianPriceUSD)
	}
	// (50 - 300 - 100) / 3
	if st.TokenAvgProfitUSD == nil || !st.TokenAvgProfitUSD.Round(2).Equal(dec("-116.67")) {
		t.Errorf("unexpected avg profit %v", st.TokenAvgProfitUSD)
	}
}

func TestAggregatePeriod_Empty(t *testing.T) {
	st := AggregatePeriod("W", domain.Period30d, nil)

	if st.TotalToken != 0 || st.Winrate != nil || st.TotalProfitMultiplier != nil || st.TokenAvgBuyAmount != nil {
		t.Errorf("expected zero totals and nil ratios, got %+v", st)
	}
	if st.PnlGt5xPercent != nil {
		t.Error("expected nil bucket percents without bought tokens")
	}
}

func TestFirstActivity(t *testing.T) {
	tokens := []*domain.WalletToken{
		{FirstBuyTimestamp: at(time.Hour)},
		{FirstSellTimestamp: at(-time.Hour)},
		{},
	}

	got := FirstActivity(tokens)
	if got == nil || !got.Equal(baseTime.Add(-time.Hour)) {
		t.Errorf("unexpected first activity %v", got)
	}
	if FirstActivity(nil) != nil {
		t.Error("expected nil first activity without tokens")
	}
}
