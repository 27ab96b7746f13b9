package reconcile

import (
	"crypto/sha256"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/prices"
	"solana-wallet-analytics/internal/solana"
)

var windowStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// addr derives a well-formed 32-byte address from a seed.
func addr(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return solana.EncodePubkey(sum[:])
}

var (
	walletA = addr("wallet-a")
	walletB = addr("wallet-b")
	walletC = addr("wallet-c")
	tokenX  = addr("token-x")
	tokenY  = addr("token-y")
)

func strPtr(s string) *string { return &s }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// buy builds a raw record spending sol quote for tokens of token.
func buy(tx, wallet, token, sol, tokens string, offset time.Duration) domain.RawSwap {
	block := int64(1000) + int64(offset/time.Second)
	return domain.RawSwap{
		TxID:           tx,
		BlockID:        &block,
		Swapper:        strPtr(wallet),
		SwapFromMint:   domain.QuoteMint,
		SwapToMint:     token,
		SwapFromAmount: d(sol),
		SwapToAmount:   d(tokens),
		BlockTimestamp: windowStart.Add(offset),
	}
}

// sell builds a raw record selling tokens of token for sol quote.
func sell(tx, wallet, token, sol, tokens string, offset time.Duration) domain.RawSwap {
	block := int64(1000) + int64(offset/time.Second)
	return domain.RawSwap{
		TxID:           tx,
		BlockID:        &block,
		Swapper:        strPtr(wallet),
		SwapFromMint:   token,
		SwapToMint:     domain.QuoteMint,
		SwapFromAmount: d(tokens),
		SwapToAmount:   d(sol),
		BlockTimestamp: windowStart.Add(offset),
	}
}

// flatPrices prices every minute of [from, to] at usd.
func flatPrices(from, to time.Time, usd string) *prices.Index {
	return prices.NewIndex(domain.QuoteMint, flatPriceRows(from, to, usd))
}

func flatPriceRows(from, to time.Time, usd string) []*domain.TokenPrice {
	var rows []*domain.TokenPrice
	for m := from.Truncate(time.Minute); !m.After(to); m = m.Add(time.Minute) {
		rows = append(rows, &domain.TokenPrice{TokenAddress: domain.QuoteMint, Minute: m, PriceUSD: d(usd)})
	}
	return rows
}

func swapsByTx(swaps []*domain.Swap) map[string][]*domain.Swap {
	out := make(map[string][]*domain.Swap)
	for _, s := range swaps {
		out[s.TxHash] = append(out[s.TxHash], s)
	}
	return out
}
