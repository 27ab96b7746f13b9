package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletToken aggregates every swap of one wallet on one token.
// Corresponds to wallet_tokens table in PostgreSQL, unique on (wallet_address, token_address).
// Rows are rebuilt wholesale from the pair's swap history.
type WalletToken struct {
	WalletAddress string
	TokenAddress  string

	TotalBuysCount       int
	TotalSalesCount      int
	TotalBuyAmountUSD    decimal.Decimal
	TotalBuyAmountToken  decimal.Decimal
	TotalSellAmountUSD   decimal.Decimal
	TotalSellAmountToken decimal.Decimal

	FirstBuyPriceUSD      *decimal.Decimal
	FirstBuyTimestamp     *time.Time
	FirstSellPriceUSD     *decimal.Decimal
	FirstSellTimestamp    *time.Time
	LastActivityTimestamp *time.Time

	TotalProfitUSD       decimal.Decimal
	TotalProfitPercent   *decimal.Decimal // nil when nothing was bought for USD
	FirstBuySellDuration *int64           // seconds; nil unless first buy <= first sell

	TotalSwapsFromTxsWithMt3Swappers  int
	TotalSwapsFromArbitrageSwapEvents int

	UpdatedAt time.Time
}

// Key returns the natural key of the aggregate.
func (wt *WalletToken) Key() PairKey {
	return PairKey{WalletAddress: wt.WalletAddress, TokenAddress: wt.TokenAddress}
}

// HasBuy reports whether the wallet bought the token at least once.
func (wt *WalletToken) HasBuy() bool {
	return wt.TotalBuysCount > 0
}

// HasSell reports whether the wallet sold the token at least once.
func (wt *WalletToken) HasSell() bool {
	return wt.TotalSalesCount > 0
}
