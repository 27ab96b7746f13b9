package stats

import (
	"github.com/shopspring/decimal"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/metrics"
)

// Scammer heuristics.
const (
	ScamMinTokens = 5
)

var (
	// ScamSellWithoutBuyRatio is the share of tokens sold without a buy.
	ScamSellWithoutBuyRatio = decimal.NewFromFloat(0.21)
	// ScamSellGtBuyRatio is the share of tokens where more was sold than bought.
	ScamSellGtBuyRatio = decimal.NewFromFloat(0.21)
)

// Bot heuristics.
const (
	BotFastFlipMinTokens  = 500
	BotSmallBuyMinTokens  = 1000
	BotHighCountMinTokens = 1000
	BotMaxSwapsPerToken   = 10
)

var (
	// BotArbitrageRatio is the share of swaps coming from arbitrage transactions.
	BotArbitrageRatio = decimal.NewFromFloat(0.5)
	// BotMaxAvgDuration is the average buy-to-sell time in seconds.
	BotMaxAvgDuration = decimal.NewFromInt(2)
	// BotMaxAvgBuyUSD is the average buy amount in USD.
	BotMaxAvgBuyUSD = decimal.NewFromInt(30)
)

// Classification is the outcome of the bot/scam heuristics.
type Classification struct {
	IsScammer bool
	IsBot     bool
}

// Classify applies the heuristics to an all-time statistics snapshot.
func Classify(all *domain.WalletStatistic) Classification {
	return Classification{
		IsScammer: IsScammer(all),
		IsBot:     IsBot(all),
	}
}

// IsScammer reports whether the wallet looks like a scam participant.
func IsScammer(st *domain.WalletStatistic) bool {
	if st.TotalToken >= ScamMinTokens {
		total := decimal.NewFromInt(int64(st.TotalToken))
		if ratio(st.TokenSellWithoutBuy, total).GreaterThanOrEqual(ScamSellWithoutBuyRatio) {
			return true
		}
		if ratio(st.TokenWithSellAmountGtBuyAmount, total).GreaterThanOrEqual(ScamSellGtBuyRatio) {
			return true
		}
	}
	return st.TotalSwapsFromTxsWithMt3Swappers > 0
}

// IsBot reports whether the wallet looks automated.
// Zero averages are treated like missing ones.
func IsBot(st *domain.WalletStatistic) bool {
	count := st.TotalBuysAndSalesCount()
	if count > 0 {
		arb := ratio(st.TotalSwapsFromArbitrageSwapEvents, decimal.NewFromInt(int64(count)))
		if arb.GreaterThanOrEqual(BotArbitrageRatio) {
			return true
		}
	}

	if st.TotalToken >= BotFastFlipMinTokens {
		if d := st.TokenBuySellDurationAvg; d != nil && !d.IsZero() && d.LessThanOrEqual(BotMaxAvgDuration) {
			return true
		}
	}

	if st.TotalToken >= BotSmallBuyMinTokens {
		if a := st.TokenAvgBuyAmount; a != nil && !a.IsZero() && a.LessThan(BotMaxAvgBuyUSD) {
			return true
		}
	}

	if st.TotalToken >= BotHighCountMinTokens {
		if count > BotMaxSwapsPerToken*st.TotalToken {
			return true
		}
	}

	return false
}

func ratio(n int, total decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(n)).DivRound(total, metrics.Precision)
}
