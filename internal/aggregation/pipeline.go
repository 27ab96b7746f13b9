// Package aggregation recomputes per-period wallet statistics and the bot/scam flags
// from the per-token aggregates.
//
// A run is a four-stage pipeline connected by bounded channels:
//
//	select -> fetch -> recompute -> persist
//
// Each stage closes its output once its input is drained and its in-flight work is
// done, so every selected wallet reaches persist before the run returns.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/observability"
	"solana-wallet-analytics/internal/stats"
	"solana-wallet-analytics/internal/storage"
)

// Pipeline defaults.
const (
	DefaultSelectLimit    = 100000
	DefaultActiveWithin   = 31 * 24 * time.Hour
	DefaultFetchBatch     = 1000
	DefaultFetchWorkers   = 5
	DefaultPersistBatch   = 5000
	DefaultPersistWorkers = 3
	DefaultIdleDelay      = 30 * time.Second

	jobName = "aggregation"
)

// ErrCorruptAggregate marks a token aggregate that cannot be summed.
var ErrCorruptAggregate = errors.New("corrupt token aggregate")

// Options configures a Pipeline.
type Options struct {
	SelectLimit    int
	ActiveWithin   time.Duration
	FetchBatch     int
	FetchWorkers   int
	PersistBatch   int
	PersistWorkers int
	IdleDelay      time.Duration // Loop pause after a run that selected nothing
	Logger         *zap.Logger
	Now            func() time.Time
}

func (o *Options) defaults() {
	if o.SelectLimit <= 0 {
		o.SelectLimit = DefaultSelectLimit
	}
	if o.ActiveWithin <= 0 {
		o.ActiveWithin = DefaultActiveWithin
	}
	if o.FetchBatch <= 0 {
		o.FetchBatch = DefaultFetchBatch
	}
	if o.FetchWorkers <= 0 {
		o.FetchWorkers = DefaultFetchWorkers
	}
	if o.PersistBatch <= 0 {
		o.PersistBatch = DefaultPersistBatch
	}
	if o.PersistWorkers <= 0 {
		o.PersistWorkers = DefaultPersistWorkers
	}
	if o.IdleDelay <= 0 {
		o.IdleDelay = DefaultIdleDelay
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// RunResult summarises one pipeline run.
type RunResult struct {
	Selected  int
	Processed int
	Failed    int
	AllTime   int // wallets whose all-time statistics and flags were recomputed
	Persisted int
}

// walletWork is a wallet with its token aggregates attached.
type walletWork struct {
	wallet *domain.Wallet
	tokens []*domain.WalletToken
}

// walletResult is everything persist writes for one wallet.
type walletResult struct {
	wallet     *domain.Wallet
	statistics []*domain.WalletStatistic
	detail     *domain.WalletDetail // nil unless all-time was recomputed
}

// Pipeline recomputes statistics of recently active wallets.
type Pipeline struct {
	wallets      storage.WalletStore
	walletTokens storage.WalletTokenStore
	statistics   storage.StatisticStore
	opts         Options

	fetchPool   pond.Pool
	persistPool pond.Pool
	writePool   pond.Pool
}

// NewPipeline creates a Pipeline.
func NewPipeline(wallets storage.WalletStore, walletTokens storage.WalletTokenStore, statistics storage.StatisticStore, opts Options) *Pipeline {
	opts.defaults()
	// Bounded queues make Submit block, so a slow store holds back the stages before it.
	// Each persist batch issues three bulk statements on writePool.
	return &Pipeline{
		wallets:      wallets,
		walletTokens: walletTokens,
		statistics:   statistics,
		opts:         opts,
		fetchPool:    pond.NewPool(opts.FetchWorkers, pond.WithQueueSize(opts.FetchWorkers)),
		persistPool:  pond.NewPool(opts.PersistWorkers, pond.WithQueueSize(opts.PersistWorkers)),
		writePool:    pond.NewPool(opts.PersistWorkers * 3),
	}
}

// Close stops the worker pools after queued tasks finish.
func (p *Pipeline) Close() {
	p.fetchPool.StopAndWait()
	p.persistPool.StopAndWait()
	p.writePool.StopAndWait()
}

// Loop runs the pipeline until ctx is cancelled. Failed runs are logged and retried.
func (p *Pipeline) Loop(ctx context.Context) error {
	for {
		res, err := p.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		wait := time.Duration(0)
		switch {
		case err != nil:
			p.opts.Logger.Error("aggregation run failed", zap.Error(err))
			wait = p.opts.IdleDelay
		case res.Selected == 0:
			wait = p.opts.IdleDelay
		}
		if wait == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// RunOnce selects one batch of stale wallets and pushes it through every stage.
func (p *Pipeline) RunOnce(ctx context.Context) (*RunResult, error) {
	began := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		res       RunResult
		persisted atomic.Int64
		wg        sync.WaitGroup
		errOnce   sync.Once
		runErr    error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			runErr = err
			cancel()
		})
	}
	stage := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				fail(err)
			}
		}()
	}

	selected := make(chan []*domain.Wallet, p.opts.FetchWorkers)
	loaded := make(chan walletWork, p.opts.FetchBatch)
	computed := make(chan walletResult, p.opts.FetchBatch)

	now := p.opts.Now().UTC()
	stage(func() error { return p.selectStage(ctx, now, selected, &res.Selected) })
	stage(func() error { return p.fetchStage(ctx, selected, loaded) })
	stage(func() error {
		p.recomputeStage(ctx, now, loaded, computed, &res)
		return nil
	})
	stage(func() error { return p.persistStage(ctx, now, computed, &persisted, fail) })
	wg.Wait()

	res.Persisted = int(persisted.Load())
	status := observability.StatusOK
	if runErr != nil {
		status = observability.StatusError
	} else if res.Selected == 0 {
		status = observability.StatusEmpty
	}
	observability.RecordPipelineRun(jobName, status, time.Since(began))

	if runErr != nil {
		return &res, runErr
	}
	p.opts.Logger.Info("aggregation run finished",
		zap.Int("selected", res.Selected),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Int("all_time", res.AllTime),
		zap.Int("persisted", res.Persisted),
		zap.Duration("took", time.Since(began)))
	return &res, nil
}

// selectStage loads the stalest wallets and emits them in fetch-sized batches.
func (p *Pipeline) selectStage(ctx context.Context, now time.Time, out chan<- []*domain.Wallet, count *int) error {
	defer close(out)

	wallets, err := p.wallets.GetStale(ctx, now.Add(-p.opts.ActiveWithin), p.opts.SelectLimit)
	if err != nil {
		return fmt.Errorf("select stale wallets: %w", err)
	}
	*count = len(wallets)
	observability.RecordStageItems("select", len(wallets))

	for start := 0; start < len(wallets); start += p.opts.FetchBatch {
		end := min(start+p.opts.FetchBatch, len(wallets))
		select {
		case out <- wallets[start:end]:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// fetchStage attaches token aggregates to each wallet, several batches at a time.
func (p *Pipeline) fetchStage(ctx context.Context, in <-chan []*domain.Wallet, out chan<- walletWork) error {
	defer close(out)

	group := p.fetchPool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for batch := range in {
		if groupCtx.Err() != nil {
			break
		}
		group.SubmitErr(func() error {
			return p.fetchBatch(groupCtx, batch, out)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		return err
	}
	return ctx.Err()
}

func (p *Pipeline) fetchBatch(ctx context.Context, batch []*domain.Wallet, out chan<- walletWork) error {
	began := time.Now()
	addresses := make([]string, len(batch))
	for i, w := range batch {
		addresses[i] = w.Address
	}
	rows, err := p.walletTokens.GetByWallets(ctx, addresses)
	if err != nil {
		return fmt.Errorf("load token aggregates for %d wallets: %w", len(batch), err)
	}

	byWallet := make(map[string][]*domain.WalletToken, len(batch))
	for _, wt := range rows {
		byWallet[wt.WalletAddress] = append(byWallet[wt.WalletAddress], wt)
	}
	p.opts.Logger.Debug("token aggregates loaded",
		zap.Int("wallets", len(batch)),
		zap.Int("tokens", len(rows)),
		zap.Duration("took", time.Since(began)))
	observability.RecordStageItems("fetch", len(batch))

	for _, w := range batch {
		select {
		case out <- walletWork{wallet: w, tokens: byWallet[w.Address]}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// recomputeStage processes wallets one by one. A failing wallet is logged and dropped.
func (p *Pipeline) recomputeStage(ctx context.Context, now time.Time, in <-chan walletWork, out chan<- walletResult, res *RunResult) {
	defer close(out)

	for work := range in {
		r, err := recompute(work.wallet, work.tokens, now)
		if err != nil {
			res.Failed++
			observability.RecordWalletError()
			p.opts.Logger.Warn("wallet recompute failed",
				zap.String("wallet", work.wallet.Address),
				zap.Error(err))
			continue
		}
		res.Processed++
		if r.detail != nil {
			res.AllTime++
		}
		select {
		case out <- *r:
		case <-ctx.Done():
			// drain so upstream senders are released
			for range in {
			}
			return
		}
	}
	observability.RecordStageItems("recompute", res.Processed)
}

// persistStage groups results into batches written in parallel. A failed batch aborts
// the whole run so fetch and recompute stop early.
func (p *Pipeline) persistStage(ctx context.Context, now time.Time, in <-chan walletResult, persisted *atomic.Int64, abort func(error)) error {
	group := p.persistPool.NewGroupContext(ctx)
	groupCtx := group.Context()

	submit := func(batch []walletResult) {
		group.SubmitErr(func() error {
			if err := p.persistBatch(groupCtx, now, batch); err != nil {
				abort(err)
				return err
			}
			persisted.Add(int64(len(batch)))
			return nil
		})
	}

	batch := make([]walletResult, 0, p.opts.PersistBatch)
	for r := range in {
		if groupCtx.Err() != nil {
			continue
		}
		batch = append(batch, r)
		if len(batch) >= p.opts.PersistBatch {
			submit(batch)
			batch = make([]walletResult, 0, p.opts.PersistBatch)
		}
	}
	if len(batch) > 0 && groupCtx.Err() == nil {
		submit(batch)
	}

	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		return err
	}
	return ctx.Err()
}

// persistBatch writes statistics, flags and wallet rows as three parallel bulk statements.
func (p *Pipeline) persistBatch(ctx context.Context, now time.Time, batch []walletResult) error {
	began := time.Now()

	var (
		statistics []*domain.WalletStatistic
		details    []*domain.WalletDetail
		wallets    = make([]*domain.Wallet, 0, len(batch))
	)
	for _, r := range batch {
		statistics = append(statistics, r.statistics...)
		if r.detail != nil {
			details = append(details, r.detail)
		}
		w := *r.wallet
		w.LastStatsCheck = &now
		wallets = append(wallets, &w)
	}

	group := p.writePool.NewGroupContext(ctx)
	group.SubmitErr(func() error {
		if err := p.statistics.UpsertBulk(group.Context(), statistics); err != nil {
			return fmt.Errorf("upsert statistics: %w", err)
		}
		return nil
	})
	if len(details) > 0 {
		group.SubmitErr(func() error {
			if err := p.wallets.UpdateFlags(group.Context(), details); err != nil {
				return fmt.Errorf("update wallet flags: %w", err)
			}
			return nil
		})
	}
	group.SubmitErr(func() error {
		if err := p.wallets.UpdateStatsCheck(group.Context(), wallets); err != nil {
			return fmt.Errorf("update stats check: %w", err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return err
	}

	observability.RecordStatisticsUpserted(len(statistics))
	observability.RecordStageItems("persist", len(batch))
	p.opts.Logger.Debug("wallet batch persisted",
		zap.Int("wallets", len(batch)),
		zap.Int("statistics", len(statistics)),
		zap.Int("flags", len(details)),
		zap.Duration("took", time.Since(began)))
	return nil
}

// recompute builds the statistics of one wallet. The 7- and 30-day periods are always
// rebuilt; all-time statistics and the bot/scam flags only when the wallet traded since
// its last check. The returned wallet carries the recomputed first activity.
func recompute(w *domain.Wallet, tokens []*domain.WalletToken, now time.Time) (r *walletResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("wallet %s: panic: %v", w.Address, rec)
		}
	}()

	for _, wt := range tokens {
		if err := checkAggregate(wt); err != nil {
			return nil, fmt.Errorf("wallet %s: %w", w.Address, err)
		}
	}

	r = &walletResult{}
	for _, period := range []domain.Period{domain.Period7d, domain.Period30d} {
		filtered := stats.FilterByPeriod(tokens, period.Days(), now)
		r.statistics = append(r.statistics, stamp(stats.AggregatePeriod(w.Address, period, filtered), now))
	}

	if w.NeedsAllTimeRecompute() {
		all := stamp(stats.AggregatePeriod(w.Address, domain.PeriodAll, tokens), now)
		r.statistics = append(r.statistics, all)
		c := stats.Classify(all)
		r.detail = &domain.WalletDetail{
			WalletAddress: w.Address,
			IsScammer:     c.IsScammer,
			IsBot:         c.IsBot,
			UpdatedAt:     now,
		}
	}

	updated := *w
	if first := stats.FirstActivity(tokens); first != nil &&
		(updated.FirstActivityTimestamp == nil || first.Before(*updated.FirstActivityTimestamp)) {
		updated.FirstActivityTimestamp = first
	}
	r.wallet = &updated
	return r, nil
}

func checkAggregate(wt *domain.WalletToken) error {
	switch {
	case wt == nil:
		return fmt.Errorf("%w: nil row", ErrCorruptAggregate)
	case wt.TotalBuysCount < 0 || wt.TotalSalesCount < 0:
		return fmt.Errorf("%w: token %s has negative trade counts", ErrCorruptAggregate, wt.TokenAddress)
	case wt.TotalBuyAmountUSD.IsNegative() || wt.TotalSellAmountUSD.IsNegative():
		return fmt.Errorf("%w: token %s has negative volume", ErrCorruptAggregate, wt.TokenAddress)
	}
	return nil
}

func stamp(st *domain.WalletStatistic, now time.Time) *domain.WalletStatistic {
	st.UpdatedAt = now
	return st
}
