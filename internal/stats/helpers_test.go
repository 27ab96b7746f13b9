package stats

import (
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-analytics/internal/domain"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func at(offset time.Duration) *time.Time {
	t := baseTime.Add(offset)
	return &t
}

func swap(event domain.EventType, offset time.Duration, cost, tokens string) *domain.Swap {
	s := &domain.Swap{
		TxHash:        "tx-" + offset.String() + string(event),
		WalletAddress: "W",
		TokenAddress:  "T",
		Timestamp:     baseTime.Add(offset),
		EventType:     event,
		CostUSD:       dec(cost),
		TokenAmount:   dec(tokens),
	}
	if !s.TokenAmount.IsZero() {
		p := s.CostUSD.Div(s.TokenAmount)
		s.PriceUSD = &p
	}
	return s
}

func boughtToken(token string, buyUSD, sellUSD string) *domain.WalletToken {
	key := domain.PairKey{WalletAddress: "W", TokenAddress: token}
	swaps := []*domain.Swap{swap(domain.EventBuy, 0, buyUSD, "100")}
	if sellUSD != "" {
		swaps = append(swaps, swap(domain.EventSell, time.Minute, sellUSD, "100"))
	}
	return CalculateTokenStats(key, swaps)
}
