package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Token is an asset traded against the quote asset.
// Corresponds to tokens table in PostgreSQL. Metadata is filled in by an external process.
type Token struct {
	Address          string // mint address
	Name             *string
	Symbol           *string
	URI              *string
	Logo             *string
	CreatedOn        *string // launch venue, when known
	IsMetadataParsed bool
	CreatedAt        time.Time
}

// TokenPrice is the USD price of a token for one minute bucket.
// Corresponds to token_prices table in PostgreSQL.
type TokenPrice struct {
	TokenAddress string
	Minute       time.Time // truncated to the minute, UTC
	PriceUSD     decimal.Decimal
}

// QuoteMint is the wrapped SOL mint. Every reconciled swap trades a token against it.
const QuoteMint = "So11111111111111111111111111111111111111112"
