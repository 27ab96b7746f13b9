package reconcile

import (
	"errors"
	"testing"
	"time"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/prices"
)

func reconcile(t *testing.T, e *Engine, def, agg []domain.RawSwap) *Result {
	t.Helper()
	res, err := e.Reconcile(def, agg, flatPrices(windowStart, windowStart.Add(time.Hour), "100"))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	return res
}

func TestReconcile_AggregatorPrecedence(t *testing.T) {
	e := NewEngine(Options{})

	def := []domain.RawSwap{
		buy("tx1", walletA, tokenX, "1", "100", time.Minute),
		buy("tx2", walletB, tokenX, "2", "200", time.Minute),
	}
	aggNull := buy("tx2", walletC, tokenX, "2", "200", time.Minute)
	aggNull.Swapper = nil
	agg := []domain.RawSwap{
		buy("tx1", walletC, tokenX, "1", "100", time.Minute),
		aggNull,
	}

	res := reconcile(t, e, def, agg)
	byTx := swapsByTx(res.Swaps)

	if len(byTx["tx1"]) != 1 || byTx["tx1"][0].WalletAddress != walletC {
		t.Errorf("tx1: expected aggregator record for walletC, got %+v", byTx["tx1"])
	}
	if len(byTx["tx2"]) != 1 || byTx["tx2"][0].WalletAddress != walletB {
		t.Errorf("tx2: expected default record when aggregator swapper is null, got %+v", byTx["tx2"])
	}
	if res.Stats.Transactions != 2 {
		t.Errorf("expected 2 transactions, got %d", res.Stats.Transactions)
	}
}

func TestReconcile_ArbitrageSingleSwapper(t *testing.T) {
	e := NewEngine(Options{})
	def := []domain.RawSwap{
		buy("tx1", walletA, tokenX, "1", "100", time.Minute),
		sell("tx1", walletA, tokenX, "1.1", "100", time.Minute),
		// one swapper, two tokens, one direction each: not arbitrage
		buy("tx2", walletA, tokenX, "1", "100", time.Minute),
		sell("tx2", walletA, tokenY, "1", "100", time.Minute),
	}

	byTx := swapsByTx(reconcile(t, e, def, nil).Swaps)
	for _, s := range byTx["tx1"] {
		if !s.ArbitrageTx || s.MultiSwapperTx {
			t.Errorf("tx1: expected arbitrage flag only, got %+v", s)
		}
	}
	for _, s := range byTx["tx2"] {
		if s.ArbitrageTx {
			t.Errorf("tx2: unexpected arbitrage flag")
		}
	}
	if len(byTx["tx1"]) != 2 {
		t.Errorf("expected both tx1 records, got %d", len(byTx["tx1"]))
	}
}

func TestReconcile_RouterPassthrough(t *testing.T) {
	e := NewEngine(Options{})
	def := []domain.RawSwap{
		buy("tx1", DefaultRouter, tokenX, "1", "100", time.Minute),
		buy("tx1", walletA, tokenX, "1", "100", time.Minute),
		// two swappers without a router are left alone
		buy("tx2", walletA, tokenX, "1", "100", time.Minute),
		buy("tx2", walletB, tokenX, "1", "100", time.Minute),
	}

	byTx := swapsByTx(reconcile(t, e, def, nil).Swaps)
	for _, s := range byTx["tx1"] {
		if s.WalletAddress != walletA {
			t.Errorf("tx1: expected router records rewritten to walletA, got %s", s.WalletAddress)
		}
	}
	seen := map[string]bool{}
	for _, s := range byTx["tx2"] {
		seen[s.WalletAddress] = true
	}
	if !seen[walletA] || !seen[walletB] {
		t.Errorf("tx2: expected both swappers kept, got %v", seen)
	}
}

func TestReconcile_ConfigurableRouters(t *testing.T) {
	router := addr("custom-router")
	e := NewEngine(Options{Routers: []string{router}})
	def := []domain.RawSwap{
		buy("tx1", walletB, tokenX, "1", "100", time.Minute),
		buy("tx1", router, tokenX, "1", "100", time.Minute),
	}

	for _, s := range reconcile(t, e, def, nil).Swaps {
		if s.WalletAddress != walletB {
			t.Errorf("expected rewrite to walletB, got %s", s.WalletAddress)
		}
	}
}

func TestReconcile_MultiSwapper(t *testing.T) {
	e := NewEngine(Options{})
	def := []domain.RawSwap{
		buy("tx1", walletA, tokenX, "1", "100", time.Minute),
		buy("tx1", walletB, tokenX, "1", "100", time.Minute),
		sell("tx1", walletC, tokenX, "1", "100", time.Minute),
	}

	swaps := reconcile(t, e, def, nil).Swaps
	if len(swaps) != 3 {
		t.Fatalf("expected 3 swaps, got %d", len(swaps))
	}
	for _, s := range swaps {
		if !s.MultiSwapperTx || s.ArbitrageTx {
			t.Errorf("expected multi-swapper flag on every record, got %+v", s)
		}
	}
}

func TestReconcile_Filters(t *testing.T) {
	e := NewEngine(Options{Blacklist: []string{tokenY}})

	noQuote := buy("tx1", walletA, tokenX, "1", "100", time.Minute)
	noQuote.SwapFromMint = tokenY
	nullSwapper := buy("tx4", walletA, tokenX, "1", "100", time.Minute)
	nullSwapper.Swapper = nil

	def := []domain.RawSwap{
		noQuote,
		buy("tx2", walletA, tokenY, "1", "100", time.Minute),
		sell("tx3", walletA, tokenY, "1", "100", time.Minute),
		nullSwapper,
		buy("tx5", "not-an-address", tokenX, "1", "100", time.Minute),
		buy("tx6", walletA, tokenX, "1", "100", time.Minute),
	}

	res := reconcile(t, e, def, nil)
	if len(res.Swaps) != 1 || res.Swaps[0].TxHash != "tx6" {
		t.Fatalf("expected only tx6 to survive, got %+v", res.Swaps)
	}
	if res.Stats.Filtered != 3 {
		t.Errorf("expected 3 filtered, got %d", res.Stats.Filtered)
	}
	if res.Stats.Skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", res.Stats.Skipped)
	}
}

func TestReconcile_Pricing(t *testing.T) {
	e := NewEngine(Options{})
	def := []domain.RawSwap{
		buy("tx1", walletA, tokenX, "1.5", "300", 90*time.Second),
		sell("tx2", walletA, tokenX, "2", "0", 2*time.Minute),
	}

	idx := prices.NewIndex(domain.QuoteMint, []*domain.TokenPrice{
		{TokenAddress: domain.QuoteMint, Minute: windowStart.Add(time.Minute), PriceUSD: d("150")},
		{TokenAddress: domain.QuoteMint, Minute: windowStart.Add(2 * time.Minute), PriceUSD: d("160")},
	})
	res, err := e.Reconcile(def, nil, idx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	byTx := swapsByTx(res.Swaps)

	b := byTx["tx1"][0]
	if b.EventType != domain.EventBuy {
		t.Errorf("expected buy, got %s", b.EventType)
	}
	if !b.QuoteAmount.Equal(d("1.5")) || !b.TokenAmount.Equal(d("300")) {
		t.Errorf("unexpected amounts quote=%s token=%s", b.QuoteAmount, b.TokenAmount)
	}
	if !b.CostUSD.Equal(d("225")) {
		t.Errorf("expected cost 225 from the rounded-down minute price, got %s", b.CostUSD)
	}
	if b.PriceUSD == nil || !b.PriceUSD.Equal(d("0.75")) {
		t.Errorf("expected unit price 0.75, got %v", b.PriceUSD)
	}

	s := byTx["tx2"][0]
	if s.EventType != domain.EventSell || !s.QuoteAmount.Equal(d("2")) {
		t.Errorf("unexpected sell %+v", s)
	}
	if !s.CostUSD.Equal(d("320")) {
		t.Errorf("expected cost 320, got %s", s.CostUSD)
	}
	if s.PriceUSD != nil {
		t.Errorf("expected nil unit price for zero token amount, got %s", s.PriceUSD)
	}
}

func TestReconcile_MissingPriceFailsWindow(t *testing.T) {
	e := NewEngine(Options{})
	def := []domain.RawSwap{
		buy("tx1", walletA, tokenX, "1", "100", time.Minute),
		buy("tx2", walletA, tokenX, "1", "100", 3*time.Hour),
	}

	_, err := e.Reconcile(def, nil, flatPrices(windowStart, windowStart.Add(time.Hour), "100"))
	if !errors.Is(err, prices.ErrMissingPriceData) {
		t.Fatalf("expected ErrMissingPriceData, got %v", err)
	}
}

func TestReconcile_StableEventIndexes(t *testing.T) {
	e := NewEngine(Options{})
	records := []domain.RawSwap{
		buy("tx1", walletA, tokenX, "1", "100", time.Minute),
		buy("tx1", walletB, tokenX, "2", "200", time.Minute),
		sell("tx1", walletC, tokenY, "3", "300", time.Minute),
	}
	reversed := []domain.RawSwap{records[2], records[1], records[0]}

	key := func(res *Result) map[int]string {
		out := map[int]string{}
		for _, s := range res.Swaps {
			out[s.EventIndex] = s.WalletAddress + "/" + s.TokenAddress
		}
		return out
	}

	a, b := key(reconcile(t, e, records, nil)), key(reconcile(t, e, reversed, nil))
	if len(a) != 3 {
		t.Fatalf("expected 3 distinct event indexes, got %v", a)
	}
	for idx, v := range a {
		if b[idx] != v {
			t.Errorf("event index %d: %s vs %s", idx, v, b[idx])
		}
	}
}

func TestReconcile_WalletAndTokenStubs(t *testing.T) {
	e := NewEngine(Options{})
	def := []domain.RawSwap{
		buy("tx1", walletA, tokenX, "1", "100", 10*time.Minute),
		sell("tx2", walletA, tokenX, "1", "100", 5*time.Minute),
		buy("tx3", walletA, tokenY, "1", "100", 20*time.Minute),
		buy("tx4", walletB, tokenX, "1", "100", 30*time.Minute),
	}

	res := reconcile(t, e, def, nil)
	if len(res.Wallets) != 2 || len(res.Tokens) != 2 {
		t.Fatalf("expected 2 wallets and 2 tokens, got %d and %d", len(res.Wallets), len(res.Tokens))
	}
	for _, w := range res.Wallets {
		if w.Address != walletA {
			continue
		}
		if !w.FirstActivityTimestamp.Equal(windowStart.Add(5 * time.Minute)) {
			t.Errorf("first activity = %v", w.FirstActivityTimestamp)
		}
		if !w.LastActivityTimestamp.Equal(windowStart.Add(20 * time.Minute)) {
			t.Errorf("last activity = %v", w.LastActivityTimestamp)
		}
	}
}

func TestSplitRange(t *testing.T) {
	end := windowStart.Add(time.Hour)
	parts := SplitRange(windowStart, end, 12)
	if len(parts) != 12 {
		t.Fatalf("expected 12 parts, got %d", len(parts))
	}
	if !parts[0][0].Equal(windowStart) || !parts[11][1].Equal(end) {
		t.Errorf("parts must cover [start, end): %v .. %v", parts[0][0], parts[11][1])
	}
	for i := 1; i < len(parts); i++ {
		if !parts[i][0].Equal(parts[i-1][1]) {
			t.Errorf("gap between part %d and %d", i-1, i)
		}
	}

	// 7 does not divide an hour evenly in nanoseconds; the last part absorbs the remainder.
	odd := SplitRange(windowStart, end, 7)
	if !odd[6][1].Equal(end) {
		t.Errorf("last part must end at %v, got %v", end, odd[6][1])
	}

	if single := SplitRange(windowStart, end, 1); len(single) != 1 {
		t.Errorf("expected a single part, got %d", len(single))
	}
}
