// Package prices provides minute-bucketed quote asset prices for reconciliation and
// collects them from an exchange.
package prices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// ErrMissingPriceData is matched by every MissingPriceError.
var ErrMissingPriceData = errors.New("missing price data")

// MissingPriceError reports the first minute without a price.
type MissingPriceError struct {
	Minute time.Time
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("missing price data at %s", e.Minute.Format(time.RFC3339))
}

// Is reports whether target is ErrMissingPriceData.
func (e *MissingPriceError) Is(target error) bool {
	return target == ErrMissingPriceData
}

// Index maps UTC minutes to a token's USD price.
type Index struct {
	token  string
	prices map[int64]decimal.Decimal
}

// NewIndex builds an index from stored prices of one token.
func NewIndex(token string, prices []*domain.TokenPrice) *Index {
	idx := &Index{token: token, prices: make(map[int64]decimal.Decimal, len(prices))}
	for _, p := range prices {
		if p.TokenAddress != token {
			continue
		}
		idx.prices[minuteKey(p.Minute)] = p.PriceUSD
	}
	return idx
}

// Load reads prices of token within [from, to] from store.
func Load(ctx context.Context, store storage.PriceStore, token string, from, to time.Time) (*Index, error) {
	prices, err := store.GetRange(ctx, token, from.UTC().Truncate(time.Minute), to.UTC().Truncate(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	return NewIndex(token, prices), nil
}

// PriceAt returns the price of the minute containing t.
func (i *Index) PriceAt(t time.Time) (decimal.Decimal, error) {
	p, ok := i.prices[minuteKey(t)]
	if !ok {
		return decimal.Zero, &MissingPriceError{Minute: t.UTC().Truncate(time.Minute)}
	}
	return p, nil
}

// Require returns a MissingPriceError when any of the given minutes has no price.
func (i *Index) Require(times ...time.Time) error {
	for _, t := range times {
		if _, err := i.PriceAt(t); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of minutes in the index.
func (i *Index) Len() int {
	return len(i.prices)
}

func minuteKey(t time.Time) int64 {
	return t.UTC().Truncate(time.Minute).Unix()
}
