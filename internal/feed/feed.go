// Package feed queries the upstream swap feeds and manages the API credentials used
// to reach them.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-wallet-analytics/internal/domain"
)

// Feed errors. Execution and quota errors rotate the credential; ErrValidation wraps
// ErrFeedExecution so it is retried the same way.
var (
	ErrFeedExecution = errors.New("feed execution failed")
	ErrQuotaExceeded = errors.New("feed quota exceeded")
	ErrValidation    = fmt.Errorf("%w: invalid response", ErrFeedExecution)
	ErrNoCredentials = errors.New("no active feed credentials")
)

// DefaultPageLimit is the page size used when paging through a window.
const DefaultPageLimit = 100000

// Query selects one page of a feed over [Start, End).
type Query struct {
	Kind   domain.FeedKind `json:"kind"`
	Start  time.Time       `json:"start"`
	End    time.Time       `json:"end"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}

// Page is one page of feed records.
type Page struct {
	Records []domain.RawSwap `json:"records"`
	Total   int              `json:"total"`
}

// Source fetches trade records from an upstream feed.
type Source interface {
	FetchTradeWindow(ctx context.Context, q Query) (*Page, error)
}

// IsRotatable reports whether err should rotate to another credential.
func IsRotatable(err error) bool {
	return errors.Is(err, ErrFeedExecution) || errors.Is(err, ErrQuotaExceeded)
}

// Validate checks the fields reconciliation depends on.
func Validate(r *domain.RawSwap) error {
	switch {
	case r.TxID == "":
		return fmt.Errorf("%w: empty tx_id", ErrValidation)
	case r.SwapFromMint == "" || r.SwapToMint == "":
		return fmt.Errorf("%w: tx %s: empty mint", ErrValidation, r.TxID)
	case r.BlockTimestamp.IsZero():
		return fmt.Errorf("%w: tx %s: missing block_timestamp", ErrValidation, r.TxID)
	case r.SwapFromAmount.IsNegative() || r.SwapToAmount.IsNegative():
		return fmt.Errorf("%w: tx %s: negative amount", ErrValidation, r.TxID)
	}
	return nil
}
