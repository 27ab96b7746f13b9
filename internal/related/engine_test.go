package related

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"
	"time"

	"filippo.io/edwards25519"
	"github.com/shopspring/decimal"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/solana"
	"solana-wallet-analytics/internal/stats"
	"solana-wallet-analytics/internal/storage/memory"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// walletAddr derives an on-curve address from a seed.
func walletAddr(t *testing.T, seed string) string {
	t.Helper()
	wide := make([]byte, 64)
	sum := sha256.Sum256([]byte(seed))
	copy(wide, sum[:])
	s, err := edwards25519.NewScalar().SetUniformBytes(wide)
	if err != nil {
		t.Fatalf("scalar: %v", err)
	}
	return solana.EncodePubkey(new(edwards25519.Point).ScalarBaseMult(s).Bytes())
}

type world struct {
	t            *testing.T
	wallets      *memory.WalletStore
	walletTokens *memory.WalletTokenStore
	swaps        *memory.SwapStore
	statistics   *memory.StatisticStore
	seq          int
}

func newWorld(t *testing.T) *world {
	w := &world{
		t:            t,
		wallets:      memory.NewWalletStore(),
		walletTokens: memory.NewWalletTokenStore(),
	}
	w.swaps = memory.NewSwapStore(w.walletTokens)
	w.statistics = memory.NewStatisticStore(w.wallets)
	return w
}

// roundTrip records a buy at buyBlock and a sell at sellBlock of token by wallet.
func (w *world) roundTrip(wallet, token string, buyBlock, sellBlock int64) {
	w.t.Helper()
	ctx := context.Background()
	last := base.Add(time.Duration(sellBlock) * time.Second)
	if _, err := w.wallets.InsertIgnore(ctx, []*domain.Wallet{{Address: wallet, LastActivityTimestamp: &last}}); err != nil {
		w.t.Fatalf("InsertIgnore: %v", err)
	}
	w.seq++
	bb, sb := buyBlock, sellBlock
	swaps := []*domain.Swap{
		{
			TxHash: fmt.Sprintf("tx-%d-buy", w.seq), WalletAddress: wallet, TokenAddress: token,
			BlockID: &bb, Timestamp: base.Add(time.Duration(buyBlock) * time.Second), EventType: domain.EventBuy,
			CostUSD: decimal.NewFromInt(10), TokenAmount: decimal.NewFromInt(100),
		},
		{
			TxHash: fmt.Sprintf("tx-%d-sell", w.seq), WalletAddress: wallet, TokenAddress: token,
			BlockID: &sb, Timestamp: last, EventType: domain.EventSell,
			CostUSD: decimal.NewFromInt(12), TokenAmount: decimal.NewFromInt(100),
		},
	}
	if _, err := w.swaps.ImportWindow(ctx, swaps, stats.CalculateTokenStats); err != nil {
		w.t.Fatalf("ImportWindow: %v", err)
	}
}

func (w *world) totalTokens(wallet string, n int) {
	w.t.Helper()
	err := w.statistics.UpsertBulk(context.Background(), []*domain.WalletStatistic{
		{WalletAddress: wallet, Period: domain.PeriodAll, TotalToken: n},
	})
	if err != nil {
		w.t.Fatalf("UpsertBulk: %v", err)
	}
}

func (w *world) engine(opts Options) *Engine {
	e := NewEngine(w.wallets, w.walletTokens, w.swaps, w.statistics, opts)
	w.t.Cleanup(e.Close)
	return e
}

var tokens = []string{"K1", "K2", "K3", "K4"}

// tokenBlocks spaces tokens far apart so block windows never overlap.
func tokenBlocks(i int) (int64, int64) {
	return int64(1000 * (i + 1)), int64(1000*(i+1) + 500)
}

func TestEngine_Find(t *testing.T) {
	w := newWorld(t)
	target := walletAddr(t, "target")
	copier := walletAddr(t, "copier")
	leader := walletAddr(t, "leader")
	twin := walletAddr(t, "twin")
	mixed := walletAddr(t, "mixed")
	pair := walletAddr(t, "pair")
	far := walletAddr(t, "far")

	for i, tok := range tokens {
		buy, sell := tokenBlocks(i)
		w.roundTrip(target, tok, buy, sell)
		if i < 3 {
			w.roundTrip(copier, tok, buy+1, sell+2)
			w.roundTrip(leader, tok, buy-1, sell)
			w.roundTrip(twin, tok, buy, sell)
			w.roundTrip(mixed, tok, buy-2, sell+3)
			w.roundTrip(far, tok, buy+4, sell+4)
		}
		if i < 2 {
			w.roundTrip(pair, tok, buy, sell)
		}
	}
	w.totalTokens(copier, 6)
	w.totalTokens(twin, 3)

	res, err := w.engine(Options{}).Find(context.Background(), target)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	if len(res.CopiedBy) != 1 || res.CopiedBy[0].WalletAddress != copier {
		t.Fatalf("copied_by = %+v", res.CopiedBy)
	}
	c := res.CopiedBy[0]
	if c.AfterCount != 3 || c.IntersectedTokens != 3 || c.TotalToken != 6 {
		t.Errorf("copier counts: %+v", c)
	}
	if c.IntersectedPercent == nil || !c.IntersectedPercent.Equal(decimal.NewFromInt(50)) {
		t.Errorf("copier percent = %v, want 50", c.IntersectedPercent)
	}

	if len(res.Copying) != 1 || res.Copying[0].WalletAddress != leader {
		t.Fatalf("copying = %+v", res.Copying)
	}
	if res.Copying[0].IntersectedPercent != nil {
		t.Errorf("expected nil percent without all-time stats, got %v", res.Copying[0].IntersectedPercent)
	}

	similar := map[string]bool{}
	for _, rw := range res.Similar {
		similar[rw.WalletAddress] = true
	}
	if len(res.Similar) != 2 || !similar[twin] || !similar[mixed] {
		t.Fatalf("similar = %+v", res.Similar)
	}
	for _, rw := range res.Similar {
		if rw.WalletAddress == mixed && rw.MixedCount != 3 {
			t.Errorf("mixed neighbor counts: %+v", rw)
		}
		if rw.WalletAddress == twin && rw.SameCount != 3 {
			t.Errorf("twin counts: %+v", rw)
		}
	}
	// mixed sells 3 blocks after twin on every token
	if res.Similar[0].WalletAddress != mixed {
		t.Errorf("expected most recent sell first, got %s", res.Similar[0].WalletAddress)
	}
}

func TestEngine_Exclusions(t *testing.T) {
	w := newWorld(t)
	target := walletAddr(t, "target")
	bot := walletAddr(t, "bot")
	whale := walletAddr(t, "whale")
	twin := walletAddr(t, "twin")

	for i, tok := range tokens[:3] {
		buy, sell := tokenBlocks(i)
		w.roundTrip(target, tok, buy, sell)
		w.roundTrip(bot, tok, buy, sell)
		w.roundTrip(whale, tok, buy, sell)
		w.roundTrip(twin, tok, buy, sell)
	}
	w.wallets.UpdateFlags(context.Background(), []*domain.WalletDetail{{WalletAddress: bot, IsBot: true}})
	w.totalTokens(whale, DefaultMaxTotalTokens)

	res, err := w.engine(Options{}).Find(context.Background(), target)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(res.Similar) != 1 || res.Similar[0].WalletAddress != twin {
		t.Errorf("expected only twin, got %+v", res.Similar)
	}
}

func TestEngine_SkipProgramAccounts(t *testing.T) {
	w := newWorld(t)
	target := walletAddr(t, "target")
	raw := make([]byte, solana.PubkeyLength)
	raw[0] = 2
	program := solana.EncodePubkey(raw)

	for i, tok := range tokens[:3] {
		buy, sell := tokenBlocks(i)
		w.roundTrip(target, tok, buy, sell)
		w.roundTrip(program, tok, buy, sell)
	}

	res, err := w.engine(Options{}).Find(context.Background(), target)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(res.Similar) != 1 {
		t.Fatalf("expected program account without filter, got %+v", res.Similar)
	}

	res, err = w.engine(Options{SkipProgramAccounts: true}).Find(context.Background(), target)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(res.Similar) != 0 {
		t.Errorf("expected program account dropped, got %+v", res.Similar)
	}
}

func TestEngine_SkipsTokensWithoutBlocks(t *testing.T) {
	w := newWorld(t)
	target := walletAddr(t, "target")
	twin := walletAddr(t, "twin")
	for i, tok := range tokens[:3] {
		buy, sell := tokenBlocks(i)
		w.roundTrip(target, tok, buy, sell)
		w.roundTrip(twin, tok, buy, sell)
	}
	// A traded token whose sell was never backfilled.
	ctx := context.Background()
	blk := int64(9000)
	w.swaps.ImportWindow(ctx, []*domain.Swap{
		{TxHash: "nb-buy", WalletAddress: target, TokenAddress: "K9", BlockID: &blk, Timestamp: base, EventType: domain.EventBuy},
		{TxHash: "nb-sell", WalletAddress: target, TokenAddress: "K9", Timestamp: base.Add(time.Minute), EventType: domain.EventSell},
	}, stats.CalculateTokenStats)

	res, err := w.engine(Options{}).Find(ctx, target)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(res.Similar) != 1 || res.Similar[0].IntersectedTokens != 3 {
		t.Errorf("unexpected result %+v", res.Similar)
	}
}

func TestEngine_WalletNotFound(t *testing.T) {
	w := newWorld(t)
	_, err := w.engine(Options{}).Find(context.Background(), walletAddr(t, "ghost"))
	if !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestEngine_NoNeighbors(t *testing.T) {
	w := newWorld(t)
	target := walletAddr(t, "target")
	w.roundTrip(target, "K1", 100, 200)

	res, err := w.engine(Options{}).Find(context.Background(), target)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if res.Similar == nil || len(res.Similar)+len(res.Copying)+len(res.CopiedBy) != 0 {
		t.Errorf("expected empty groups, got %+v", res)
	}
}

// detailsGap hides the details rows of some wallets, as when the row was never written.
type detailsGap struct {
	*memory.WalletStore
	missing map[string]bool
}

func (s detailsGap) GetDetails(ctx context.Context, addresses []string) ([]*domain.WalletDetail, error) {
	details, err := s.WalletStore.GetDetails(ctx, addresses)
	if err != nil {
		return nil, err
	}
	kept := details[:0]
	for _, d := range details {
		if !s.missing[d.WalletAddress] {
			kept = append(kept, d)
		}
	}
	return kept, nil
}

func TestEngine_DropsNeighborsWithoutDetails(t *testing.T) {
	w := newWorld(t)
	target := walletAddr(t, "target")
	twin := walletAddr(t, "twin")
	orphan := walletAddr(t, "orphan")
	for i, tok := range tokens[:3] {
		buy, sell := tokenBlocks(i)
		w.roundTrip(target, tok, buy, sell)
		w.roundTrip(twin, tok, buy, sell)
		w.roundTrip(orphan, tok, buy, sell)
	}

	wallets := detailsGap{WalletStore: w.wallets, missing: map[string]bool{orphan: true}}
	e := NewEngine(wallets, w.walletTokens, w.swaps, w.statistics, Options{})
	t.Cleanup(e.Close)

	res, err := e.Find(context.Background(), target)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(res.Similar) != 1 || res.Similar[0].WalletAddress != twin {
		t.Errorf("expected only twin, got %+v", res.Similar)
	}
}

func TestEngine_PercentRoundsHalfToEven(t *testing.T) {
	w := newWorld(t)
	target := walletAddr(t, "target")
	twin := walletAddr(t, "twin")
	for i, tok := range tokens[:3] {
		buy, sell := tokenBlocks(i)
		w.roundTrip(target, tok, buy, sell)
		w.roundTrip(twin, tok, buy, sell)
	}
	// 3 / 2400 = 0.125%
	w.totalTokens(twin, 2400)

	res, err := w.engine(Options{}).Find(context.Background(), target)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(res.Similar) != 1 {
		t.Fatalf("similar = %+v", res.Similar)
	}
	got := res.Similar[0].IntersectedPercent
	if got == nil || !got.Equal(decimal.RequireFromString("0.12")) {
		t.Errorf("percent = %v, want 0.12", got)
	}
}
