package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeedKind identifies an upstream trade feed.
type FeedKind string

// Feed kind constants.
const (
	// FeedDefault is the router-level swap feed covering every venue.
	FeedDefault FeedKind = "default"
	// FeedAggregator is the aggregator summary feed. Its records win for a transaction
	// when they carry a swapper.
	FeedAggregator FeedKind = "aggregator"
)

// String returns the string representation of FeedKind.
func (k FeedKind) String() string {
	return string(k)
}

// IsValid checks if the feed kind is a valid value.
func (k FeedKind) IsValid() bool {
	return k == FeedDefault || k == FeedAggregator
}

// RawSwap is a trade record as returned by an upstream feed.
type RawSwap struct {
	TxID           string          `json:"tx_id"`
	BlockID        *int64          `json:"block_id"`
	Swapper        *string         `json:"swapper"`
	SwapFromMint   string          `json:"swap_from_mint"`
	SwapToMint     string          `json:"swap_to_mint"`
	SwapFromAmount decimal.Decimal `json:"swap_from_amount"`
	SwapToAmount   decimal.Decimal `json:"swap_to_amount"`
	BlockTimestamp time.Time       `json:"block_timestamp"`
}

// SwapperAddress returns the swapper or an empty string when the feed left it null.
func (r *RawSwap) SwapperAddress() string {
	if r.Swapper == nil {
		return ""
	}
	return *r.Swapper
}

// FeedAccount is an API credential for the upstream feeds.
// Corresponds to feed_accounts table in PostgreSQL.
type FeedAccount struct {
	ID       int64
	APIKey   string
	IsActive bool
}

// FeedState is the persisted reconciliation watermark.
// Corresponds to the single-row feed_state table in PostgreSQL.
type FeedState struct {
	ParsedUntil time.Time // swaps are reconciled and imported up to this time (exclusive)
	UpdatedAt   time.Time
}
