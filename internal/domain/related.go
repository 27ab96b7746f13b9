package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus is the position of a neighbor trade relative to the target's trade.
type TradeStatus string

// Trade status constants. Mixed only appears as a combined status.
const (
	TradeBefore TradeStatus = "before"
	TradeSame   TradeStatus = "same"
	TradeAfter  TradeStatus = "after"
	TradeMixed  TradeStatus = "mixed"
)

// Relation is the copy-trading relationship of a neighbor wallet to the target.
type Relation string

// Relation constants.
const (
	RelationSimilar  Relation = "similar"
	RelationCopying  Relation = "copying"   // target follows the neighbor
	RelationCopiedBy Relation = "copied_by" // neighbor follows the target
)

// TradeRef is the minimal view of a trade used for block-proximity analysis.
type TradeRef struct {
	WalletAddress string
	TokenAddress  string
	EventType     EventType
	BlockID       int64
	Timestamp     time.Time
}

// RelatedWallet is a neighbor wallet sharing at least the minimum number of tokens
// with the target.
type RelatedWallet struct {
	WalletAddress           string           `json:"wallet_address"`
	TotalToken              int              `json:"total_token"`
	Relation                Relation         `json:"relation"`
	SameCount               int              `json:"same_count"`
	BeforeCount             int              `json:"before_count"`
	AfterCount              int              `json:"after_count"`
	MixedCount              int              `json:"mixed_count"`
	IntersectedTokens       int              `json:"intersected_tokens"`
	IntersectedPercent      *decimal.Decimal `json:"intersected_percent"`
	LastIntersectedSellTime *time.Time       `json:"last_intersected_sell_time"`
	LastActivityTimestamp   *time.Time       `json:"last_activity_timestamp"`
}

// RelatedWallets groups the neighbors of a target wallet by relation.
type RelatedWallets struct {
	WalletAddress string          `json:"wallet_address"`
	Similar       []RelatedWallet `json:"similar"`
	Copying       []RelatedWallet `json:"copying"`
	CopiedBy      []RelatedWallet `json:"copied_by"`
}
