package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/feed"
	"solana-wallet-analytics/internal/lock"
	"solana-wallet-analytics/internal/observability"
	"solana-wallet-analytics/internal/prices"
	"solana-wallet-analytics/internal/storage"
)

// Runner defaults.
const (
	DefaultWindow  = 60 * time.Minute
	DefaultLag     = 1440 * time.Minute
	DefaultLockTTL = 30 * time.Minute
	lockKey        = "reconcile"
)

// ErrNoWatermark is returned when the watermark was never initialised.
var ErrNoWatermark = errors.New("reconciliation watermark not set")

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Window    time.Duration
	Lag       time.Duration
	QuoteMint string
	Locker    lock.Locker // optional
	LockTTL   time.Duration
	Logger    *zap.Logger
	Now       func() time.Time
}

// Runner advances the watermark one window at a time.
type Runner struct {
	feeds    storage.FeedStore
	prices   storage.PriceStore
	rotator  *feed.Rotator
	fetcher  *Fetcher
	engine   *Engine
	importer *Importer
	opts     RunnerOptions
}

// NewRunner creates a Runner.
func NewRunner(feeds storage.FeedStore, priceStore storage.PriceStore, rotator *feed.Rotator, fetcher *Fetcher, engine *Engine, importer *Importer, opts RunnerOptions) *Runner {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Lag < 0 {
		opts.Lag = 0
	}
	if opts.QuoteMint == "" {
		opts.QuoteMint = domain.QuoteMint
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		feeds:    feeds,
		prices:   priceStore,
		rotator:  rotator,
		fetcher:  fetcher,
		engine:   engine,
		importer: importer,
		opts:     opts,
	}
}

// Run processes windows until the watermark reaches now minus the lag. Returns the
// number of windows completed.
func (r *Runner) Run(ctx context.Context) (int, error) {
	done := 0
	for {
		advanced, err := r.step(ctx)
		if err != nil {
			return done, err
		}
		if !advanced {
			return done, nil
		}
		done++
	}
}

// step processes the next window. It returns false when there is nothing to do or
// another worker holds the lease.
func (r *Runner) step(ctx context.Context) (bool, error) {
	if r.opts.Locker != nil {
		lease, err := r.opts.Locker.Acquire(ctx, lockKey, r.opts.LockTTL)
		if errors.Is(err, lock.ErrNotAcquired) {
			r.opts.Logger.Info("reconcile lease held elsewhere, skipping pass")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				r.opts.Logger.Warn("release reconcile lease", zap.Error(err))
			}
		}()
	}

	state, err := r.feeds.GetState(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return false, ErrNoWatermark
	}
	if err != nil {
		return false, fmt.Errorf("load watermark: %w", err)
	}

	now := r.opts.Now().UTC()
	bound := now.Add(-r.opts.Lag).Truncate(time.Minute)
	start := state.ParsedUntil.UTC()
	observability.UpdateWatermarkLag(start, now)
	if !start.Before(bound) {
		return false, nil
	}
	end := start.Add(r.opts.Window)
	if end.After(bound) {
		end = bound
	}

	for {
		src, err := r.rotator.Current(ctx)
		if err != nil {
			return false, err
		}

		began := time.Now()
		inserted, err := r.process(ctx, src, start, end)
		if err == nil {
			if err := r.feeds.SetParsedUntil(ctx, end); err != nil {
				return false, fmt.Errorf("advance watermark: %w", err)
			}
			observability.RecordWindow(observability.StatusOK, inserted, time.Since(began))
			r.opts.Logger.Info("window reconciled",
				zap.Time("start", start),
				zap.Time("end", end),
				zap.Int("inserted", inserted),
				zap.Duration("took", time.Since(began)))
			return true, nil
		}

		observability.RecordWindow(observability.StatusError, 0, time.Since(began))
		if !feed.IsRotatable(err) {
			return false, err
		}
		r.opts.Logger.Warn("feed failed, rotating credential",
			zap.Time("start", start),
			zap.Error(err))
		if err := r.rotator.Rotate(ctx, err); err != nil {
			return false, err
		}
	}
}

func (r *Runner) process(ctx context.Context, src feed.Source, start, end time.Time) (int, error) {
	idx, err := prices.Load(ctx, r.prices, r.opts.QuoteMint, start.Add(-time.Minute), end.Add(time.Minute))
	if err != nil {
		return 0, err
	}
	if err := idx.Require(end); err != nil {
		return 0, fmt.Errorf("window [%s, %s): %w", start.Format(time.RFC3339), end.Format(time.RFC3339), err)
	}

	window, err := r.fetcher.Fetch(ctx, src, start, end)
	if err != nil {
		return 0, err
	}

	res, err := r.engine.Reconcile(window.Default, window.Aggregator, idx)
	if err != nil {
		return 0, err
	}
	r.opts.Logger.Debug("window reconciled in memory",
		zap.Int("transactions", res.Stats.Transactions),
		zap.Int("swaps", len(res.Swaps)),
		zap.Int("filtered", res.Stats.Filtered),
		zap.Int("skipped", res.Stats.Skipped))

	return r.importer.Import(ctx, res)
}
