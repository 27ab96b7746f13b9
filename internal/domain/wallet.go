package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatsRecheckGuard is added to the last activity time before comparing it with the
// last statistics check. Wallets checked after that point skip the all-time recompute.
const StatsRecheckGuard = 10 * time.Minute

// Wallet is a trading account observed in at least one swap.
// Corresponds to wallets table in PostgreSQL.
type Wallet struct {
	Address                string     // base58 public key
	FirstActivityTimestamp *time.Time // earliest first buy/sell, only moves earlier
	LastActivityTimestamp  *time.Time // latest swap time, only moves later
	LastStatsCheck         *time.Time // set by the aggregation pipeline on persist
	CreatedAt              time.Time
}

// NeedsAllTimeRecompute reports whether all-time statistics and the bot/scam flags
// must be recomputed for the wallet.
func (w *Wallet) NeedsAllTimeRecompute() bool {
	if w.LastStatsCheck == nil || w.LastActivityTimestamp == nil {
		return true
	}
	return w.LastStatsCheck.Before(w.LastActivityTimestamp.Add(StatsRecheckGuard))
}

// WalletDetail holds classification flags and balance for a wallet.
// Corresponds to wallet_details table in PostgreSQL.
type WalletDetail struct {
	WalletAddress string
	IsScammer     bool
	IsBot         bool
	SolBalance    *decimal.Decimal
	UpdatedAt     time.Time
}
