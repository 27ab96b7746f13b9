package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the direction of a swap relative to the quote asset.
type EventType string

// Event type constants.
const (
	EventBuy  EventType = "buy"
	EventSell EventType = "sell"
)

// String returns the string representation of EventType.
func (e EventType) String() string {
	return string(e)
}

// IsValid checks if the event type is a valid value.
func (e EventType) IsValid() bool {
	return e == EventBuy || e == EventSell
}

// Swap is one leg of a trade between the quote asset and a token.
// Corresponds to swaps table in PostgreSQL. Rows are append-only.
type Swap struct {
	TxHash         string           // transaction signature
	EventIndex     int              // position of the record within its reconciled transaction
	WalletAddress  string           // FK to wallets
	TokenAddress   string           // FK to tokens
	BlockID        *int64           // slot; nil until backfilled
	Timestamp      time.Time        // block time
	EventType      EventType        // "buy" | "sell"
	QuoteAmount    decimal.Decimal  // quote asset amount
	TokenAmount    decimal.Decimal  // token amount
	CostUSD        decimal.Decimal  // quote amount x quote price at minute
	PriceUSD       *decimal.Decimal // cost / token amount; nil when token amount is zero
	MultiSwapperTx bool             // transaction had 3+ distinct swappers
	ArbitrageTx    bool             // single swapper bought and sold the same token in the transaction
	CreatedAt      time.Time        // record creation time
}

// PairKey identifies the (wallet, token) aggregate a swap contributes to.
func (s *Swap) PairKey() PairKey {
	return PairKey{WalletAddress: s.WalletAddress, TokenAddress: s.TokenAddress}
}

// PairKey is the natural key of a WalletToken row.
type PairKey struct {
	WalletAddress string
	TokenAddress  string
}
