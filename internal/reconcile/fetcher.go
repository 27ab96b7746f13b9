package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/feed"
)

// Fetch defaults.
const (
	DefaultDefaultSplit    = 12
	DefaultAggregatorSplit = 4
	DefaultFetchWorkers    = 16
)

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	DefaultSplit    int // sub-intervals per window for the default feed
	AggregatorSplit int // sub-intervals per window for the aggregator feed
	PageLimit       int
	Workers         int
	Logger          *zap.Logger
}

// Fetcher downloads both feeds for a window, split into sub-intervals fetched in
// parallel and paged by offset.
type Fetcher struct {
	opts FetcherOptions
	pool pond.Pool
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.DefaultSplit <= 0 {
		opts.DefaultSplit = DefaultDefaultSplit
	}
	if opts.AggregatorSplit <= 0 {
		opts.AggregatorSplit = DefaultAggregatorSplit
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = feed.DefaultPageLimit
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultFetchWorkers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Fetcher{opts: opts, pool: pond.NewPool(opts.Workers)}
}

// Close stops the worker pool.
func (f *Fetcher) Close() {
	f.pool.StopAndWait()
}

// Window holds the raw records of both feeds for one window.
type Window struct {
	Start      time.Time
	End        time.Time
	Default    []domain.RawSwap
	Aggregator []domain.RawSwap
}

// Fetch downloads [start, end) from both feeds. The first failing sub-interval cancels
// the rest and its error is returned.
func (f *Fetcher) Fetch(ctx context.Context, src feed.Source, start, end time.Time) (*Window, error) {
	type job struct {
		kind     domain.FeedKind
		from, to time.Time
	}
	var jobs []job
	for _, iv := range SplitRange(start, end, f.opts.DefaultSplit) {
		jobs = append(jobs, job{domain.FeedDefault, iv[0], iv[1]})
	}
	for _, iv := range SplitRange(start, end, f.opts.AggregatorSplit) {
		jobs = append(jobs, job{domain.FeedAggregator, iv[0], iv[1]})
	}

	results := make([][]domain.RawSwap, len(jobs))
	var (
		mu       sync.Mutex
		firstErr error
	)

	group := f.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, j := range jobs {
		group.SubmitErr(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			records, err := f.fetchAll(groupCtx, src, j.kind, j.from, j.to)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return err
			}
			results[i] = records
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if firstErr != nil {
			return nil, firstErr
		}
		if !errors.Is(err, pond.ErrGroupStopped) {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := &Window{Start: start, End: end}
	for i, j := range jobs {
		if j.kind == domain.FeedAggregator {
			w.Aggregator = append(w.Aggregator, results[i]...)
		} else {
			w.Default = append(w.Default, results[i]...)
		}
	}

	f.opts.Logger.Debug("window fetched",
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("default", len(w.Default)),
		zap.Int("aggregator", len(w.Aggregator)))
	return w, nil
}

// fetchAll pages through one sub-interval until a page comes back short.
func (f *Fetcher) fetchAll(ctx context.Context, src feed.Source, kind domain.FeedKind, from, to time.Time) ([]domain.RawSwap, error) {
	var all []domain.RawSwap
	for offset := 0; ; offset += f.opts.PageLimit {
		page, err := src.FetchTradeWindow(ctx, feed.Query{
			Kind:   kind,
			Start:  from,
			End:    to,
			Offset: offset,
			Limit:  f.opts.PageLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %s [%s, %s) offset %d: %w",
				kind, from.Format(time.RFC3339), to.Format(time.RFC3339), offset, err)
		}
		all = append(all, page.Records...)
		if len(page.Records) < f.opts.PageLimit {
			return all, nil
		}
	}
}

// SplitRange splits [start, end) into parts equal sub-intervals. The last one ends
// exactly at end.
func SplitRange(start, end time.Time, parts int) [][2]time.Time {
	if parts <= 1 || !end.After(start) {
		return [][2]time.Time{{start, end}}
	}
	delta := end.Sub(start) / time.Duration(parts)
	out := make([][2]time.Time, 0, parts)
	for i := 0; i < parts-1; i++ {
		out = append(out, [2]time.Time{
			start.Add(time.Duration(i) * delta),
			start.Add(time.Duration(i+1) * delta),
		})
	}
	out = append(out, [2]time.Time{start.Add(time.Duration(parts-1) * delta), end})
	return out
}
