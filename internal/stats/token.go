// Package stats computes per-token aggregates, period statistics and the bot/scam
// heuristics from a wallet's trade history.
package stats

import (
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/metrics"
)

// CalculateTokenStats rebuilds the aggregate of one (wallet, token) pair from its swaps.
// The result depends only on the set of swaps and their order for equal timestamps.
func CalculateTokenStats(key domain.PairKey, swaps []*domain.Swap) *domain.WalletToken {
	wt := &domain.WalletToken{
		WalletAddress: key.WalletAddress,
		TokenAddress:  key.TokenAddress,
	}

	for _, s := range swaps {
		ts := s.Timestamp
		switch s.EventType {
		case domain.EventBuy:
			wt.TotalBuysCount++
			wt.TotalBuyAmountUSD = wt.TotalBuyAmountUSD.Add(s.CostUSD)
			wt.TotalBuyAmountToken = wt.TotalBuyAmountToken.Add(s.TokenAmount)
			// <= so the last of several equal timestamps wins
			if wt.FirstBuyTimestamp == nil || !ts.After(*wt.FirstBuyTimestamp) {
				wt.FirstBuyTimestamp = timePtr(ts)
				wt.FirstBuyPriceUSD = copyDecimal(s.PriceUSD)
			}
		case domain.EventSell:
			wt.TotalSalesCount++
			wt.TotalSellAmountUSD = wt.TotalSellAmountUSD.Add(s.CostUSD)
			wt.TotalSellAmountToken = wt.TotalSellAmountToken.Add(s.TokenAmount)
			if wt.FirstSellTimestamp == nil || !ts.After(*wt.FirstSellTimestamp) {
				wt.FirstSellTimestamp = timePtr(ts)
				wt.FirstSellPriceUSD = copyDecimal(s.PriceUSD)
			}
		}

		if wt.LastActivityTimestamp == nil || !ts.Before(*wt.LastActivityTimestamp) {
			wt.LastActivityTimestamp = timePtr(ts)
		}
		if s.MultiSwapperTx {
			wt.TotalSwapsFromTxsWithMt3Swappers++
		}
		if s.ArbitrageTx {
			wt.TotalSwapsFromArbitrageSwapEvents++
		}
	}

	if wt.FirstBuyTimestamp != nil && wt.FirstSellTimestamp != nil &&
		!wt.FirstBuyTimestamp.After(*wt.FirstSellTimestamp) {
		d := int64(wt.FirstSellTimestamp.Sub(*wt.FirstBuyTimestamp) / time.Second)
		wt.FirstBuySellDuration = &d
	}

	if wt.TotalBuysCount > 0 {
		wt.TotalProfitUSD = wt.TotalSellAmountUSD.Sub(wt.TotalBuyAmountUSD)
		if p := metrics.Percent(wt.TotalProfitUSD, wt.TotalBuyAmountUSD); p != nil {
			wt.TotalProfitPercent = metrics.Ptr(p.RoundBank(2))
		}
	}

	return wt
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}
