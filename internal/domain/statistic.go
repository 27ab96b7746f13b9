package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Period is a statistics period class.
type Period string

// Period class constants.
const (
	Period7d  Period = "7d"
	Period30d Period = "30d"
	PeriodAll Period = "all"

	// Large-buy variants are computed over tokens bought for at least the USD floor.
	PeriodLargeBuy7d  Period = "largebuy_7d"
	PeriodLargeBuy30d Period = "largebuy_30d"
	PeriodLargeBuyAll Period = "largebuy_all"
)

// String returns the string representation of Period.
func (p Period) String() string {
	return string(p)
}

// IsValid checks if the period is a valid value.
func (p Period) IsValid() bool {
	switch p {
	case Period7d, Period30d, PeriodAll, PeriodLargeBuy7d, PeriodLargeBuy30d, PeriodLargeBuyAll:
		return true
	}
	return false
}

// Days returns the lookback in days. Zero means all-time.
func (p Period) Days() int {
	switch p {
	case Period7d, PeriodLargeBuy7d:
		return 7
	case Period30d, PeriodLargeBuy30d:
		return 30
	}
	return 0
}

// WalletStatistic is the aggregate of one wallet's WalletToken rows over a period.
// Corresponds to wallet_statistics table in PostgreSQL, unique on (wallet_address, period).
type WalletStatistic struct {
	WalletAddress string
	Period        Period

	Winrate                 *decimal.Decimal // percent of bought tokens with profit >= 0
	TotalTokenBuyAmountUSD  decimal.Decimal
	TotalTokenSellAmountUSD decimal.Decimal
	TotalProfitUSD          decimal.Decimal
	TotalProfitMultiplier   *decimal.Decimal // profit / buy volume x 100

	TotalToken                     int
	TotalTokenBuys                 int
	TotalTokenSales                int
	TokenWithBuyAndSell            int
	TokenWithBuy                   int
	TokenSellWithoutBuy            int
	TokenBuyWithoutSell            int
	TokenWithSellAmountGtBuyAmount int
	TokenAvgBuyAmount              *decimal.Decimal
	TokenMedianBuyAmount           *decimal.Decimal
	TokenFirstBuyAvgPriceUSD       *decimal.Decimal
	TokenFirstBuyMedianPriceUSD    *decimal.Decimal
	TokenAvgProfitUSD              *decimal.Decimal
	TokenBuySellDurationAvg        *decimal.Decimal // seconds
	TokenBuySellDurationMedian     *decimal.Decimal // seconds
	FirstTransactionTimestamp      *time.Time

	// Profit buckets by percent profit, over tokens with at least one buy.
	PnlLtMinusDot5Num       int // <= -50%
	PnlMinusDot5To0xNum     int // (-50%, 0%]
	PnlLt2xNum              int // (0%, 200%]
	Pnl2xTo5xNum            int // (200%, 500%]
	PnlGt5xNum              int // > 500%
	PnlLtMinusDot5Percent   *decimal.Decimal
	PnlMinusDot5To0xPercent *decimal.Decimal
	PnlLt2xPercent          *decimal.Decimal
	Pnl2xTo5xPercent        *decimal.Decimal
	PnlGt5xPercent          *decimal.Decimal

	TotalSwapsFromArbitrageSwapEvents int
	TotalSwapsFromTxsWithMt3Swappers  int

	UpdatedAt time.Time
}

// TotalBuysAndSalesCount returns buys + sales when the wallet both bought and sold
// in the period, and zero otherwise.
func (s *WalletStatistic) TotalBuysAndSalesCount() int {
	if s.TotalTokenBuys == 0 || s.TotalTokenSales == 0 {
		return 0
	}
	return s.TotalTokenBuys + s.TotalTokenSales
}
