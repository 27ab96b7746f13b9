// Package blockfill fills in the slot of swaps imported without one.
package blockfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"solana-wallet-analytics/internal/observability"
	"solana-wallet-analytics/internal/solana"
	"solana-wallet-analytics/internal/storage"
)

// Backfiller defaults.
const (
	DefaultBatchSize = 100
	DefaultWorkers   = 8
)

// Lookup outcomes.
const (
	statusFilled   = "filled"
	statusNotFound = "not_found"
	statusFailed   = "failed"
)

// Options configures a Backfiller.
type Options struct {
	BatchSize  int
	Workers    int
	MaxBatches int // per Run; 0 means until nothing is left
	Logger     *zap.Logger
}

// Backfiller looks up transactions over RPC and writes their slot back to every swap of
// the transaction. Timestamps are left as the feed reported them.
type Backfiller struct {
	swaps storage.SwapStore
	rpc   solana.TransactionFetcher
	opts  Options
	pool  pond.Pool
}

// NewBackfiller creates a Backfiller.
func NewBackfiller(swaps storage.SwapStore, rpc solana.TransactionFetcher, opts Options) *Backfiller {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Backfiller{
		swaps: swaps,
		rpc:   rpc,
		opts:  opts,
		pool:  pond.NewPool(opts.Workers),
	}
}

// Close stops the worker pool.
func (b *Backfiller) Close() {
	b.pool.StopAndWait()
}

// Run fills batches until none are left or a batch resolves nothing. Returns the number
// of transactions updated.
func (b *Backfiller) Run(ctx context.Context) (int, error) {
	began := time.Now()
	total := 0
	for batch := 0; b.opts.MaxBatches == 0 || batch < b.opts.MaxBatches; batch++ {
		n, pending, err := b.fillBatch(ctx)
		if err != nil {
			observability.RecordPipelineRun("blockfill", observability.StatusError, time.Since(began))
			return total, err
		}
		total += n
		if pending == 0 || n == 0 {
			break
		}
	}

	status := observability.StatusOK
	if total == 0 {
		status = observability.StatusEmpty
	}
	observability.RecordPipelineRun("blockfill", status, time.Since(began))
	b.opts.Logger.Info("block backfill finished",
		zap.Int("updated", total),
		zap.Duration("took", time.Since(began)))
	return total, nil
}

// fillBatch resolves one batch. It returns the number of transactions updated and the
// number that were pending.
func (b *Backfiller) fillBatch(ctx context.Context) (int, int, error) {
	pending, err := b.swaps.ListMissingBlock(ctx, b.opts.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list swaps without block: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	var (
		mu      sync.Mutex
		updates []storage.BlockUpdate
	)
	group := b.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, sig := range pending {
		group.Submit(func() {
			tx, err := b.rpc.GetTransaction(groupCtx, sig)
			switch {
			case err != nil:
				observability.RecordBlockfill(statusFailed)
				b.opts.Logger.Warn("transaction lookup failed",
					zap.String("tx", sig),
					zap.Error(err))
				return
			case tx == nil:
				observability.RecordBlockfill(statusNotFound)
				b.opts.Logger.Debug("transaction not found", zap.String("tx", sig))
				return
			}

			observability.RecordBlockfill(statusFilled)
			mu.Lock()
			updates = append(updates, storage.BlockUpdate{TxHash: sig, BlockID: tx.Slot})
			mu.Unlock()
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		return 0, len(pending), err
	}
	if err := ctx.Err(); err != nil {
		return 0, len(pending), err
	}

	if len(updates) > 0 {
		if err := b.swaps.UpdateBlocks(ctx, updates); err != nil {
			return 0, len(pending), fmt.Errorf("update blocks: %w", err)
		}
	}
	b.opts.Logger.Debug("block batch resolved",
		zap.Int("pending", len(pending)),
		zap.Int("updated", len(updates)))
	return len(updates), len(pending), nil
}
