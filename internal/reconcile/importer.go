package reconcile

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"solana-wallet-analytics/internal/stats"
	"solana-wallet-analytics/internal/storage"
)

// Importer writes a reconciled window to storage.
type Importer struct {
	wallets storage.WalletStore
	tokens  storage.TokenStore
	swaps   storage.SwapStore
	archive storage.TradeArchive // optional
	logger  *zap.Logger
	pool    pond.Pool
}

// NewImporter creates an Importer. archive may be nil.
func NewImporter(wallets storage.WalletStore, tokens storage.TokenStore, swaps storage.SwapStore, archive storage.TradeArchive, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		wallets: wallets,
		tokens:  tokens,
		swaps:   swaps,
		archive: archive,
		logger:  logger,
		pool:    pond.NewPool(2),
	}
}

// Import persists a window. Wallet and token stubs are created first; swaps and the
// rebuilt aggregates of every touched pair are then written atomically. Returns the
// number of swaps inserted.
func (i *Importer) Import(ctx context.Context, res *Result) (int, error) {
	if len(res.Swaps) == 0 {
		return 0, nil
	}

	var walletsErr, tokensErr error
	group := i.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	group.Submit(func() {
		_, walletsErr = i.wallets.InsertIgnore(groupCtx, res.Wallets)
	})
	group.Submit(func() {
		_, tokensErr = i.tokens.InsertIgnore(groupCtx, res.Tokens)
	})
	_ = group.Wait()
	if walletsErr != nil {
		return 0, fmt.Errorf("insert wallets: %w", walletsErr)
	}
	if tokensErr != nil {
		return 0, fmt.Errorf("insert tokens: %w", tokensErr)
	}

	inserted, err := i.swaps.ImportWindow(ctx, res.Swaps, stats.CalculateTokenStats)
	if err != nil {
		return 0, fmt.Errorf("import swaps: %w", err)
	}

	if err := i.wallets.UpdateActivity(ctx, res.Wallets); err != nil {
		return inserted, fmt.Errorf("update wallet activity: %w", err)
	}

	if i.archive != nil {
		if err := i.archive.InsertBulk(ctx, res.Swaps); err != nil {
			i.logger.Warn("trade archive write failed", zap.Int("swaps", len(res.Swaps)), zap.Error(err))
		}
	}

	i.logger.Info("window imported",
		zap.Int("swaps", len(res.Swaps)),
		zap.Int("inserted", inserted),
		zap.Int("wallets", len(res.Wallets)),
		zap.Int("tokens", len(res.Tokens)))
	return inserted, nil
}
