package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-analytics/internal/domain"
)

// WalletStore provides access to wallets and wallet_details storage.
type WalletStore interface {
	// InsertIgnore creates missing wallets together with an empty detail row.
	// Existing wallets are left untouched. Returns the number of wallets created.
	InsertIgnore(ctx context.Context, wallets []*domain.Wallet) (int, error)

	// Get retrieves a wallet by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.Wallet, error)

	// GetStale retrieves wallets active after activeSince, never-checked first,
	// then by last_stats_check ASC.
	GetStale(ctx context.Context, activeSince time.Time, limit int) ([]*domain.Wallet, error)

	// UpdateActivity moves last_activity_timestamp later and first_activity_timestamp
	// earlier. Nil fields and values that would move the other way are ignored.
	UpdateActivity(ctx context.Context, wallets []*domain.Wallet) error

	// UpdateStatsCheck writes last_stats_check and moves first_activity_timestamp earlier.
	UpdateStatsCheck(ctx context.Context, wallets []*domain.Wallet) error

	// GetDetails retrieves detail rows for the given wallets. Missing rows are skipped.
	GetDetails(ctx context.Context, addresses []string) ([]*domain.WalletDetail, error)

	// UpdateFlags writes is_bot and is_scammer for the given wallets.
	UpdateFlags(ctx context.Context, details []*domain.WalletDetail) error
}

// TokenStore provides access to tokens storage.
type TokenStore interface {
	// InsertIgnore creates missing tokens. Returns the number of tokens created.
	InsertIgnore(ctx context.Context, tokens []*domain.Token) (int, error)

	// Get retrieves a token by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.Token, error)
}

// RebuildFunc rebuilds a WalletToken aggregate from the full swap history of a pair.
type RebuildFunc func(key domain.PairKey, history []*domain.Swap) *domain.WalletToken

// BlockUpdate carries the backfilled slot for all swaps of a transaction.
type BlockUpdate struct {
	TxHash  string
	BlockID int64
}

// SwapStore provides access to swaps storage.
type SwapStore interface {
	// ImportWindow inserts swaps, ignoring rows whose (tx_hash, event_index) exists, and
	// upserts the rebuilt WalletToken of every touched pair. Both happen atomically.
	// Returns the number of swaps inserted.
	ImportWindow(ctx context.Context, swaps []*domain.Swap, rebuild RebuildFunc) (int, error)

	// GetByPair retrieves all swaps of a wallet on a token, ordered by timestamp ASC.
	GetByPair(ctx context.Context, walletAddress, tokenAddress string) ([]*domain.Swap, error)

	// ListMissingBlock retrieves up to limit distinct transactions whose swaps lack a block id.
	ListMissingBlock(ctx context.Context, limit int) ([]string, error)

	// UpdateBlocks sets block_id on every swap of each transaction.
	UpdateBlocks(ctx context.Context, updates []BlockUpdate) error
}

// TradeArchive stores a copy of imported trade events for analytical reads.
type TradeArchive interface {
	// InsertBulk appends trade events. Re-inserting an event is harmless.
	InsertBulk(ctx context.Context, swaps []*domain.Swap) error
}

// TradeReader answers the block-proximity queries of related-wallet detection.
type TradeReader interface {
	// FirstTrades returns the wallet's lowest-block buy and sell of the token.
	// Swaps without a block id are ignored, so a side is nil only when none of its
	// swaps has a block yet and the caller skips the token.
	FirstTrades(ctx context.Context, walletAddress, tokenAddress string) (buy, sell *domain.TradeRef, err error)

	// TradesInBlockRange returns trades of the token with the given event type in
	// [fromBlock, toBlock] (inclusive), excluding excludeWallet.
	TradesInBlockRange(ctx context.Context, tokenAddress string, event domain.EventType, fromBlock, toBlock int64, excludeWallet string) ([]domain.TradeRef, error)
}

// WalletTokenStore provides access to wallet_tokens storage.
type WalletTokenStore interface {
	// GetByWallets retrieves all aggregates of the given wallets.
	GetByWallets(ctx context.Context, addresses []string) ([]*domain.WalletToken, error)

	// GetTraded retrieves up to limit aggregates of a wallet with at least one buy and
	// one sell, ordered by last_activity_timestamp DESC.
	GetTraded(ctx context.Context, walletAddress string, limit int) ([]*domain.WalletToken, error)
}

// LargeBuyCriteria selects wallets eligible for large-buy statistics.
type LargeBuyCriteria struct {
	MinWinrate        decimal.Decimal
	MinProfitUSD      decimal.Decimal
	MinMultiplier     decimal.Decimal
	MinTotalToken     int
	MinAvgBuyAmount   decimal.Decimal
	MaxAvgBuyAmount   decimal.Decimal
	MinMedianDuration decimal.Decimal
	Min30dTotalToken  int
}

// StatisticStore provides access to wallet_statistics storage.
type StatisticStore interface {
	// UpsertBulk writes statistics atomically, replacing rows on (wallet_address, period).
	UpsertBulk(ctx context.Context, stats []*domain.WalletStatistic) error

	// Get retrieves one statistic. Returns ErrNotFound if not exists.
	Get(ctx context.Context, walletAddress string, period domain.Period) (*domain.WalletStatistic, error)

	// GetByWallets retrieves the statistics of a period for the given wallets.
	GetByWallets(ctx context.Context, period domain.Period, addresses []string) ([]*domain.WalletStatistic, error)

	// DeleteByPeriod removes every statistic of a period.
	DeleteByPeriod(ctx context.Context, period domain.Period) error

	// FindLargeBuyCandidates returns wallets whose all-time and 30-day statistics meet
	// the criteria and that are flagged neither bot nor scammer.
	FindLargeBuyCandidates(ctx context.Context, c LargeBuyCriteria) ([]string, error)
}

// PriceStore provides access to token_prices storage.
type PriceStore interface {
	// InsertIgnore adds prices, skipping minutes already stored. Returns rows inserted.
	InsertIgnore(ctx context.Context, prices []*domain.TokenPrice) (int, error)

	// GetRange retrieves prices of a token within [from, to] (inclusive), ordered by minute ASC.
	GetRange(ctx context.Context, tokenAddress string, from, to time.Time) ([]*domain.TokenPrice, error)

	// Latest retrieves the most recent price of a token. Returns ErrNotFound if none.
	Latest(ctx context.Context, tokenAddress string) (*domain.TokenPrice, error)
}

// FeedStore provides access to feed_state and feed_accounts storage.
type FeedStore interface {
	// GetState retrieves the watermark. Returns ErrNotFound if never set.
	GetState(ctx context.Context) (*domain.FeedState, error)

	// SetParsedUntil persists the watermark.
	SetParsedUntil(ctx context.Context, t time.Time) error

	// ActiveAccount retrieves the lowest-id active credential. Returns ErrNotFound if none.
	ActiveAccount(ctx context.Context) (*domain.FeedAccount, error)

	// Deactivate marks a credential inactive.
	Deactivate(ctx context.Context, id int64) error

	// AddAccount stores a new active credential.
	AddAccount(ctx context.Context, apiKey string) (*domain.FeedAccount, error)
}
