// Package related finds wallets trading the same tokens as a target wallet within a few
// blocks of it, and classifies who follows whom.
package related

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/metrics"
	"solana-wallet-analytics/internal/observability"
	"solana-wallet-analytics/internal/solana"
	"solana-wallet-analytics/internal/storage"
)

// Engine defaults.
const (
	DefaultTokenLimit     = 3000
	DefaultWorkers        = 10
	DefaultBlockWindow    = 3
	DefaultMinShared      = 3
	DefaultMaxTotalTokens = 20000
)

// ErrWalletNotFound is returned when the target wallet does not exist.
var ErrWalletNotFound = errors.New("wallet not found")

// Options configures an Engine.
type Options struct {
	TokenLimit     int   // traded tokens of the target to scan
	Workers        int   // tokens scanned concurrently
	BlockWindow    int64 // blocks on each side of the target's trade
	MinShared      int   // tokens a neighbor must share with the target
	MaxTotalTokens int   // neighbors trading at least this many tokens are noise

	// SkipProgramAccounts drops neighbors whose address is off the ed25519 curve.
	SkipProgramAccounts bool

	Logger *zap.Logger
}

// Engine answers related-wallet queries. It is read-only.
type Engine struct {
	wallets      storage.WalletStore
	walletTokens storage.WalletTokenStore
	trades       storage.TradeReader
	statistics   storage.StatisticStore
	opts         Options
	pool         pond.Pool
}

// NewEngine creates an Engine.
func NewEngine(wallets storage.WalletStore, walletTokens storage.WalletTokenStore, trades storage.TradeReader, statistics storage.StatisticStore, opts Options) *Engine {
	if opts.TokenLimit <= 0 {
		opts.TokenLimit = DefaultTokenLimit
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.BlockWindow <= 0 {
		opts.BlockWindow = DefaultBlockWindow
	}
	if opts.MinShared <= 0 {
		opts.MinShared = DefaultMinShared
	}
	if opts.MaxTotalTokens <= 0 {
		opts.MaxTotalTokens = DefaultMaxTotalTokens
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		wallets:      wallets,
		walletTokens: walletTokens,
		trades:       trades,
		statistics:   statistics,
		opts:         opts,
		pool:         pond.NewPool(opts.Workers),
	}
}

// Close stops the worker pool.
func (e *Engine) Close() {
	e.pool.StopAndWait()
}

// shared is what a neighbor has in common with the target across tokens.
type shared struct {
	statuses map[string]domain.TradeStatus // by token
	lastSell *time.Time
}

// Find returns the neighbors of a wallet grouped by relation. An unknown wallet yields
// ErrWalletNotFound; a known wallet without neighbors yields empty groups.
func (e *Engine) Find(ctx context.Context, address string) (*domain.RelatedWallets, error) {
	began := time.Now()
	res, err := e.find(ctx, address)
	status := observability.StatusOK
	switch {
	case err != nil:
		status = observability.StatusError
	case len(res.Similar)+len(res.Copying)+len(res.CopiedBy) == 0:
		status = observability.StatusEmpty
	}
	observability.RecordRelatedSearch(status, time.Since(began))
	return res, err
}

func (e *Engine) find(ctx context.Context, address string) (*domain.RelatedWallets, error) {
	if _, err := e.wallets.Get(ctx, address); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, address)
		}
		return nil, fmt.Errorf("load wallet %s: %w", address, err)
	}

	tokens, err := e.walletTokens.GetTraded(ctx, address, e.opts.TokenLimit)
	if err != nil {
		return nil, fmt.Errorf("load traded tokens: %w", err)
	}

	neighbors := xsync.NewMap[string, shared]()
	group := e.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, wt := range tokens {
		token := wt.TokenAddress
		group.SubmitErr(func() error {
			return e.scanToken(groupCtx, address, token, neighbors)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := make(map[string]shared)
	neighbors.Range(func(wallet string, s shared) bool {
		if len(s.statuses) >= e.opts.MinShared {
			candidates[wallet] = s
		}
		return true
	})
	e.opts.Logger.Debug("neighbors collected",
		zap.String("wallet", address),
		zap.Int("tokens", len(tokens)),
		zap.Int("neighbors", neighbors.Size()),
		zap.Int("candidates", len(candidates)))

	return e.build(ctx, address, candidates)
}

// scanToken compares the target's first trades of a token with every other wallet's
// trades near them and records the combined status per neighbor.
func (e *Engine) scanToken(ctx context.Context, target, token string, neighbors *xsync.Map[string, shared]) error {
	buy, sell, err := e.trades.FirstTrades(ctx, target, token)
	if err != nil {
		return fmt.Errorf("first trades of %s: %w", token, err)
	}
	if buy == nil || sell == nil {
		return nil
	}

	buys, err := e.trades.TradesInBlockRange(ctx, token, domain.EventBuy,
		buy.BlockID-e.opts.BlockWindow, buy.BlockID+e.opts.BlockWindow, target)
	if err != nil {
		return fmt.Errorf("buys near block %d: %w", buy.BlockID, err)
	}
	sells, err := e.trades.TradesInBlockRange(ctx, token, domain.EventSell,
		sell.BlockID-e.opts.BlockWindow, sell.BlockID+e.opts.BlockWindow, target)
	if err != nil {
		return fmt.Errorf("sells near block %d: %w", sell.BlockID, err)
	}

	firstBuys := earliestByWallet(buys)
	for wallet, ns := range earliestByWallet(sells) {
		nb, ok := firstBuys[wallet]
		if !ok {
			continue
		}
		status := CombineStatus(BlockRelation(nb.BlockID, buy.BlockID), BlockRelation(ns.BlockID, sell.BlockID))
		sellTime := ns.Timestamp
		neighbors.Compute(wallet, func(old shared, loaded bool) (shared, xsync.ComputeOp) {
			if !loaded {
				old = shared{statuses: make(map[string]domain.TradeStatus)}
			}
			old.statuses[token] = status
			if old.lastSell == nil || sellTime.After(*old.lastSell) {
				old.lastSell = &sellTime
			}
			return old, xsync.UpdateOp
		})
	}
	return nil
}

// earliestByWallet keeps the lowest-block trade of each wallet.
func earliestByWallet(trades []domain.TradeRef) map[string]domain.TradeRef {
	out := make(map[string]domain.TradeRef)
	for _, t := range trades {
		cur, ok := out[t.WalletAddress]
		if !ok || t.BlockID < cur.BlockID {
			out[t.WalletAddress] = t
		}
	}
	return out
}

// build loads the candidate wallets, drops bots, wallets without details and noisy
// wallets, then groups the rest.
func (e *Engine) build(ctx context.Context, target string, candidates map[string]shared) (*domain.RelatedWallets, error) {
	res := &domain.RelatedWallets{
		WalletAddress: target,
		Similar:       []domain.RelatedWallet{},
		Copying:       []domain.RelatedWallet{},
		CopiedBy:      []domain.RelatedWallet{},
	}
	if len(candidates) == 0 {
		return res, nil
	}

	addresses := make([]string, 0, len(candidates))
	for addr := range candidates {
		if e.opts.SkipProgramAccounts && !solana.IsOnCurve(addr) {
			continue
		}
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	details, err := e.wallets.GetDetails(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("load wallet details: %w", err)
	}
	// only wallets with a details row that is not flagged as a bot stay eligible
	eligible := make(map[string]bool, len(details))
	for _, d := range details {
		eligible[d.WalletAddress] = !d.IsBot
	}

	allTime, err := e.statistics.GetByWallets(ctx, domain.PeriodAll, addresses)
	if err != nil {
		return nil, fmt.Errorf("load all-time statistics: %w", err)
	}
	totals := make(map[string]int, len(allTime))
	for _, st := range allTime {
		totals[st.WalletAddress] = st.TotalToken
	}

	for _, addr := range addresses {
		if !eligible[addr] || totals[addr] >= e.opts.MaxTotalTokens {
			continue
		}
		w, err := e.wallets.Get(ctx, addr)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load wallet %s: %w", addr, err)
		}

		rw := summarize(addr, candidates[addr], totals[addr])
		rw.LastActivityTimestamp = w.LastActivityTimestamp
		switch rw.Relation {
		case domain.RelationCopying:
			res.Copying = append(res.Copying, rw)
		case domain.RelationCopiedBy:
			res.CopiedBy = append(res.CopiedBy, rw)
		default:
			res.Similar = append(res.Similar, rw)
		}
	}

	for _, group := range [][]domain.RelatedWallet{res.Similar, res.Copying, res.CopiedBy} {
		sortByLastSell(group)
	}
	return res, nil
}

var hundred = decimal.NewFromInt(100)

// summarize counts statuses and derives the relation of one neighbor.
func summarize(addr string, s shared, totalToken int) domain.RelatedWallet {
	rw := domain.RelatedWallet{
		WalletAddress:           addr,
		TotalToken:              totalToken,
		LastIntersectedSellTime: s.lastSell,
	}
	set := make(map[domain.TradeStatus]bool, 4)
	for _, st := range s.statuses {
		set[st] = true
		switch st {
		case domain.TradeSame:
			rw.SameCount++
		case domain.TradeBefore:
			rw.BeforeCount++
		case domain.TradeAfter:
			rw.AfterCount++
		case domain.TradeMixed:
			rw.MixedCount++
		}
	}
	rw.IntersectedTokens = rw.SameCount + rw.BeforeCount + rw.AfterCount + rw.MixedCount
	rw.Relation = ClassifyRelation(set)

	if rw.IntersectedTokens > 0 && totalToken > 0 {
		if ratio := metrics.DivInt(decimal.NewFromInt(int64(rw.IntersectedTokens)), totalToken); ratio != nil {
			rw.IntersectedPercent = metrics.Ptr(ratio.Mul(hundred).RoundBank(2))
		}
	}
	return rw
}

func sortByLastSell(group []domain.RelatedWallet) {
	sort.SliceStable(group, func(i, j int) bool {
		a, b := group[i].LastIntersectedSellTime, group[j].LastIntersectedSellTime
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return group[i].WalletAddress < group[j].WalletAddress
		}
		return a.After(*b)
	})
}
