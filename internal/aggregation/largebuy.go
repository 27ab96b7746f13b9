package aggregation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/observability"
	"solana-wallet-analytics/internal/stats"
	"solana-wallet-analytics/internal/storage"
)

const (
	DefaultLargeBuyWorkers = 10

	largeBuyJobName = "largebuy"
)

// DefaultLargeBuyCriteria selects consistently profitable wallets trading mid-sized amounts.
var DefaultLargeBuyCriteria = storage.LargeBuyCriteria{
	MinWinrate:        decimal.NewFromInt(30),
	MinProfitUSD:      decimal.NewFromInt(5000),
	MinMultiplier:     decimal.NewFromInt(30),
	MinTotalToken:     4,
	MinAvgBuyAmount:   decimal.NewFromInt(200),
	MaxAvgBuyAmount:   decimal.NewFromInt(1000),
	MinMedianDuration: decimal.NewFromInt(60),
	Min30dTotalToken:  1,
}

// Token floors for the large-buy statistics.
var (
	LargeBuyMinFirstPrice = decimal.RequireFromString("0.000015")
	LargeBuyMinBuyUSD     = decimal.NewFromInt(200)
)

var largeBuyPeriods = []domain.Period{domain.PeriodLargeBuy7d, domain.PeriodLargeBuy30d, domain.PeriodLargeBuyAll}

// LargeBuyOptions configures a LargeBuyJob.
type LargeBuyOptions struct {
	Criteria storage.LargeBuyCriteria
	Workers  int
	Logger   *zap.Logger
	Now      func() time.Time
}

// LargeBuyJob writes the large-buy statistic variants for eligible wallets.
type LargeBuyJob struct {
	walletTokens storage.WalletTokenStore
	statistics   storage.StatisticStore
	opts         LargeBuyOptions
	pool         pond.Pool
}

// NewLargeBuyJob creates a LargeBuyJob. A zero Criteria uses DefaultLargeBuyCriteria.
func NewLargeBuyJob(walletTokens storage.WalletTokenStore, statistics storage.StatisticStore, opts LargeBuyOptions) *LargeBuyJob {
	if opts.Criteria == (storage.LargeBuyCriteria{}) {
		opts.Criteria = DefaultLargeBuyCriteria
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultLargeBuyWorkers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LargeBuyJob{
		walletTokens: walletTokens,
		statistics:   statistics,
		opts:         opts,
		pool:         pond.NewPool(opts.Workers),
	}
}

// Close stops the worker pool.
func (j *LargeBuyJob) Close() {
	j.pool.StopAndWait()
}

// Run recomputes the large-buy statistics. The 7- and 30-day variants are cleared first
// so wallets that dropped out do not keep stale rows. Returns the number of wallets written.
func (j *LargeBuyJob) Run(ctx context.Context) (int, error) {
	began := time.Now()
	n, err := j.run(ctx)
	status := observability.StatusOK
	switch {
	case err != nil:
		status = observability.StatusError
	case n == 0:
		status = observability.StatusEmpty
	}
	observability.RecordPipelineRun(largeBuyJobName, status, time.Since(began))
	if err != nil {
		return n, err
	}
	j.opts.Logger.Info("large-buy statistics updated",
		zap.Int("wallets", n),
		zap.Duration("took", time.Since(began)))
	return n, nil
}

func (j *LargeBuyJob) run(ctx context.Context) (int, error) {
	for _, period := range []domain.Period{domain.PeriodLargeBuy7d, domain.PeriodLargeBuy30d} {
		if err := j.statistics.DeleteByPeriod(ctx, period); err != nil {
			return 0, fmt.Errorf("clear %s statistics: %w", period, err)
		}
	}

	wallets, err := j.statistics.FindLargeBuyCandidates(ctx, j.opts.Criteria)
	if err != nil {
		return 0, fmt.Errorf("find large-buy candidates: %w", err)
	}
	j.opts.Logger.Debug("large-buy candidates selected", zap.Int("wallets", len(wallets)))
	if len(wallets) == 0 {
		return 0, nil
	}

	now := j.opts.Now().UTC()
	var (
		mu      sync.Mutex
		results []*domain.WalletStatistic
	)
	group := j.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, addr := range wallets {
		group.SubmitErr(func() error {
			rows, err := j.walletTokens.GetByWallets(groupCtx, []string{addr})
			if err != nil {
				return fmt.Errorf("load tokens of %s: %w", addr, err)
			}
			computed := LargeBuyStatistics(addr, rows, now)
			mu.Lock()
			results = append(results, computed...)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := j.statistics.UpsertBulk(ctx, results); err != nil {
		return 0, fmt.Errorf("upsert large-buy statistics: %w", err)
	}
	observability.RecordStatisticsUpserted(len(results))
	return len(wallets), nil
}

// LargeBuyStatistics builds the three large-buy variants of one wallet over the tokens
// bought at or above the price and volume floors.
func LargeBuyStatistics(walletAddress string, tokens []*domain.WalletToken, now time.Time) []*domain.WalletStatistic {
	var kept []*domain.WalletToken
	for _, wt := range tokens {
		if wt.FirstBuyPriceUSD == nil || wt.FirstBuyPriceUSD.LessThan(LargeBuyMinFirstPrice) {
			continue
		}
		if wt.TotalBuyAmountUSD.LessThan(LargeBuyMinBuyUSD) {
			continue
		}
		kept = append(kept, wt)
	}

	out := make([]*domain.WalletStatistic, 0, len(largeBuyPeriods))
	for _, period := range largeBuyPeriods {
		st := stats.AggregatePeriod(walletAddress, period, stats.FilterByPeriod(kept, period.Days(), now))
		st.UpdatedAt = now
		out = append(out, st)
	}
	return out
}
