package stats

import (
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/metrics"
)

// Profit bucket boundaries in percent.
var (
	bucketGt5x      = decimal.NewFromInt(500)
	bucket2xTo5x    = decimal.NewFromInt(200)
	bucketLt2x      = decimal.Zero
	bucketMinusHalf = decimal.NewFromInt(-50)
)

// FilterByPeriod keeps the tokens traded within the last days before now.
// A token is kept when its first buy is inside the period and it was either never sold
// or first sold inside the period, or when its first sell alone is inside the period.
// days == 0 keeps everything.
func FilterByPeriod(tokens []*domain.WalletToken, days int, now time.Time) []*domain.WalletToken {
	if days == 0 {
		return tokens
	}
	threshold := now.AddDate(0, 0, -days)

	inPeriod := func(t *time.Time) bool {
		return t != nil && !t.Before(threshold)
	}

	var result []*domain.WalletToken
	for _, wt := range tokens {
		fb, fs := wt.FirstBuyTimestamp, wt.FirstSellTimestamp
		switch {
		case inPeriod(fb) && (fs == nil || inPeriod(fs)):
			result = append(result, wt)
		case inPeriod(fs):
			result = append(result, wt)
		}
	}
	return result
}

// AggregatePeriod builds the statistics of one wallet over already filtered tokens.
func AggregatePeriod(walletAddress string, period domain.Period, tokens []*domain.WalletToken) *domain.WalletStatistic {
	st := &domain.WalletStatistic{
		WalletAddress: walletAddress,
		Period:        period,
	}

	var (
		profitable     int
		durations      []decimal.Decimal
		buyAmounts     []decimal.Decimal
		firstBuyPrices []decimal.Decimal
	)

	for _, wt := range tokens {
		st.TotalToken++
		st.TotalTokenBuys += wt.TotalBuysCount
		st.TotalTokenSales += wt.TotalSalesCount
		st.TotalTokenBuyAmountUSD = st.TotalTokenBuyAmountUSD.Add(wt.TotalBuyAmountUSD)
		st.TotalTokenSellAmountUSD = st.TotalTokenSellAmountUSD.Add(wt.TotalSellAmountUSD)
		st.TotalProfitUSD = st.TotalProfitUSD.Add(wt.TotalProfitUSD)
		st.TotalSwapsFromTxsWithMt3Swappers += wt.TotalSwapsFromTxsWithMt3Swappers
		st.TotalSwapsFromArbitrageSwapEvents += wt.TotalSwapsFromArbitrageSwapEvents

		st.FirstTransactionTimestamp = earliest(st.FirstTransactionTimestamp, wt.FirstBuyTimestamp)
		st.FirstTransactionTimestamp = earliest(st.FirstTransactionTimestamp, wt.FirstSellTimestamp)

		if wt.HasBuy() {
			st.TokenWithBuy++
			if wt.FirstBuyPriceUSD != nil && !wt.FirstBuyPriceUSD.IsZero() {
				firstBuyPrices = append(firstBuyPrices, *wt.FirstBuyPriceUSD)
			}
			if wt.HasSell() {
				st.TokenWithBuyAndSell++
			} else {
				st.TokenBuyWithoutSell++
			}
			buyAmounts = append(buyAmounts, wt.TotalBuyAmountUSD)
			if wt.TotalSellAmountToken.GreaterThan(wt.TotalBuyAmountToken) {
				st.TokenWithSellAmountGtBuyAmount++
			}
			if !wt.TotalProfitUSD.IsNegative() {
				profitable++
			}
			if wt.TotalProfitPercent != nil {
				addToBucket(st, *wt.TotalProfitPercent)
			}
		} else if wt.HasSell() {
			st.TokenSellWithoutBuy++
		}

		if wt.FirstBuySellDuration != nil {
			durations = append(durations, decimal.NewFromInt(*wt.FirstBuySellDuration))
		}
	}

	st.TotalProfitMultiplier = metrics.Percent(st.TotalProfitUSD, st.TotalTokenBuyAmountUSD)
	st.TokenAvgBuyAmount = metrics.DivInt(st.TotalTokenBuyAmountUSD, st.TokenWithBuy)
	st.TokenMedianBuyAmount = metrics.Median(buyAmounts)
	st.TokenFirstBuyAvgPriceUSD = metrics.DivInt(metrics.Sum(firstBuyPrices), st.TokenWithBuy)
	st.TokenFirstBuyMedianPriceUSD = metrics.Median(firstBuyPrices)
	st.TokenAvgProfitUSD = metrics.DivInt(st.TotalProfitUSD, st.TokenWithBuy)
	st.Winrate = metrics.PercentOf(profitable, st.TokenWithBuy)
	st.TokenBuySellDurationAvg = metrics.DivInt(metrics.Sum(durations), st.TokenWithBuyAndSell)
	st.TokenBuySellDurationMedian = metrics.Median(durations)

	if st.TokenWithBuy > 0 {
		st.PnlLtMinusDot5Percent = metrics.PercentOf(st.PnlLtMinusDot5Num, st.TokenWithBuy)
		st.PnlMinusDot5To0xPercent = metrics.PercentOf(st.PnlMinusDot5To0xNum, st.TokenWithBuy)
		st.PnlLt2xPercent = metrics.PercentOf(st.PnlLt2xNum, st.TokenWithBuy)
		st.Pnl2xTo5xPercent = metrics.PercentOf(st.Pnl2xTo5xNum, st.TokenWithBuy)
		st.PnlGt5xPercent = metrics.PercentOf(st.PnlGt5xNum, st.TokenWithBuy)
	}

	return st
}

// addToBucket counts a token in exactly one profit bucket.
func addToBucket(st *domain.WalletStatistic, percent decimal.Decimal) {
	switch {
	case percent.GreaterThan(bucketGt5x):
		st.PnlGt5xNum++
	case percent.GreaterThan(bucket2xTo5x):
		st.Pnl2xTo5xNum++
	case percent.GreaterThan(bucketLt2x):
		st.PnlLt2xNum++
	case percent.GreaterThan(bucketMinusHalf):
		st.PnlMinusDot5To0xNum++
	default:
		st.PnlLtMinusDot5Num++
	}
}

func earliest(cur, candidate *time.Time) *time.Time {
	if candidate == nil {
		return cur
	}
	if cur == nil || candidate.Before(*cur) {
		return timePtr(*candidate)
	}
	return cur
}

// FirstActivity returns the earliest first buy or first sell across tokens.
func FirstActivity(tokens []*domain.WalletToken) *time.Time {
	var first *time.Time
	for _, wt := range tokens {
		first = earliest(first, wt.FirstBuyTimestamp)
		first = earliest(first, wt.FirstSellTimestamp)
	}
	return first
}
