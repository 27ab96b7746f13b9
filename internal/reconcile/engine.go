// Package reconcile merges the upstream swap feeds into classified swaps and imports
// them window by window behind a persisted watermark.
package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/metrics"
	"solana-wallet-analytics/internal/solana"
)

// DefaultRouter is the aggregator router wallet that appears as a second swapper in
// passthrough transactions.
const DefaultRouter = "HV1KXxWFaSeriyFvXyx48FqG9BoFbfinB8njCJonqP7K"

// PriceLookup returns the quote asset USD price for the minute containing t.
type PriceLookup interface {
	PriceAt(t time.Time) (decimal.Decimal, error)
}

// Options configures an Engine.
type Options struct {
	QuoteMint string   // defaults to domain.QuoteMint
	Routers   []string // defaults to DefaultRouter
	Blacklist []string // tokens never imported
}

// Engine reconciles raw feed records. It holds no state between calls.
type Engine struct {
	quote     string
	routers   map[string]struct{}
	blacklist map[string]struct{}
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		quote:     opts.QuoteMint,
		routers:   make(map[string]struct{}),
		blacklist: make(map[string]struct{}, len(opts.Blacklist)),
	}
	if e.quote == "" {
		e.quote = domain.QuoteMint
	}
	routers := opts.Routers
	if len(routers) == 0 {
		routers = []string{DefaultRouter}
	}
	for _, r := range routers {
		e.routers[r] = struct{}{}
	}
	for _, t := range opts.Blacklist {
		e.blacklist[t] = struct{}{}
	}
	return e
}

// Result is the output of one reconciled window.
type Result struct {
	Swaps   []*domain.Swap
	Wallets []*domain.Wallet // one per wallet, with the window's first and last swap time
	Tokens  []*domain.Token  // one per token
	Stats   Stats
}

// Stats counts what happened to the input records.
type Stats struct {
	DefaultRecords    int
	AggregatorRecords int
	Transactions      int
	Filtered          int // wrong pair or blacklisted
	Skipped           int // missing swapper or tx id, or malformed address
}

// record is a raw swap with the flags set during transaction classification.
type record struct {
	raw            domain.RawSwap
	swapper        string
	eventIndex     int
	multiSwapperTx bool
	arbitrageTx    bool
}

// Reconcile merges both feeds for one window and builds classified swaps. A missing
// price for any record fails the whole window.
func (e *Engine) Reconcile(defaultFeed, aggregatorFeed []domain.RawSwap, prices PriceLookup) (*Result, error) {
	res := &Result{Stats: Stats{DefaultRecords: len(defaultFeed), AggregatorRecords: len(aggregatorFeed)}}

	txs := combine(defaultFeed, aggregatorFeed)
	res.Stats.Transactions = len(txs)

	txIDs := make([]string, 0, len(txs))
	for id := range txs {
		txIDs = append(txIDs, id)
	}
	sort.Strings(txIDs)

	wallets := make(map[string]*domain.Wallet)
	tokens := make(map[string]struct{})

	for _, id := range txIDs {
		records := txs[id]
		e.classify(records)

		for _, r := range records {
			if !e.keep(&r.raw) {
				res.Stats.Filtered++
				continue
			}
			swap, err := e.build(r, prices)
			if err != nil {
				return nil, err
			}
			if swap == nil {
				res.Stats.Skipped++
				continue
			}
			res.Swaps = append(res.Swaps, swap)

			w, ok := wallets[swap.WalletAddress]
			if !ok {
				w = &domain.Wallet{Address: swap.WalletAddress}
				wallets[swap.WalletAddress] = w
				res.Wallets = append(res.Wallets, w)
			}
			w.FirstActivityTimestamp = earlier(w.FirstActivityTimestamp, swap.Timestamp)
			w.LastActivityTimestamp = later(w.LastActivityTimestamp, swap.Timestamp)
			if _, ok := tokens[swap.TokenAddress]; !ok {
				tokens[swap.TokenAddress] = struct{}{}
				res.Tokens = append(res.Tokens, &domain.Token{Address: swap.TokenAddress})
			}
		}
	}

	return res, nil
}

// combine groups records by transaction. Aggregator records replace the default feed's
// records of a transaction, but only those that carry a swapper.
func combine(defaultFeed, aggregatorFeed []domain.RawSwap) map[string][]*record {
	txs := make(map[string][]*record)
	for _, raw := range aggregatorFeed {
		if raw.Swapper == nil {
			continue
		}
		txs[raw.TxID] = append(txs[raw.TxID], &record{raw: raw, swapper: *raw.Swapper})
	}

	fromAggregator := make(map[string]struct{}, len(txs))
	for id := range txs {
		fromAggregator[id] = struct{}{}
	}
	for _, raw := range defaultFeed {
		if _, ok := fromAggregator[raw.TxID]; ok {
			continue
		}
		txs[raw.TxID] = append(txs[raw.TxID], &record{raw: raw, swapper: raw.SwapperAddress()})
	}

	for _, records := range txs {
		sortRecords(records)
		for i, r := range records {
			r.eventIndex = i
		}
	}
	return txs
}

// sortRecords puts the records of one transaction in an order that does not depend on
// the order the feeds returned them in, so event indexes are stable across runs.
func sortRecords(records []*record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := &records[i].raw, &records[j].raw
		if a.SwapFromMint != b.SwapFromMint {
			return a.SwapFromMint < b.SwapFromMint
		}
		if a.SwapToMint != b.SwapToMint {
			return a.SwapToMint < b.SwapToMint
		}
		if c := a.SwapFromAmount.Cmp(b.SwapFromAmount); c != 0 {
			return c < 0
		}
		if c := a.SwapToAmount.Cmp(b.SwapToAmount); c != 0 {
			return c < 0
		}
		return records[i].swapper < records[j].swapper
	})
}

// classify tags a transaction by its number of distinct swappers.
func (e *Engine) classify(records []*record) {
	if len(records) < 2 {
		return
	}

	var swappers []string
	events := make(map[string]map[string]map[domain.EventType]bool)
	for _, r := range records {
		if _, ok := events[r.swapper]; !ok {
			swappers = append(swappers, r.swapper)
			events[r.swapper] = make(map[string]map[domain.EventType]bool)
		}
		token, event := e.leg(&r.raw)
		if events[r.swapper][token] == nil {
			events[r.swapper][token] = make(map[domain.EventType]bool)
		}
		events[r.swapper][token][event] = true
	}

	switch n := len(swappers); {
	case n == 1:
		for _, seen := range events[swappers[0]] {
			if seen[domain.EventBuy] && seen[domain.EventSell] {
				for _, r := range records {
					r.arbitrageTx = true
				}
				return
			}
		}
	case n == 2:
		owner := ""
		if e.isRouter(swappers[1]) {
			owner = swappers[0]
		} else if e.isRouter(swappers[0]) {
			owner = swappers[1]
		}
		if owner != "" {
			for _, r := range records {
				r.swapper = owner
			}
		}
	default:
		for _, r := range records {
			r.multiSwapperTx = true
		}
	}
}

func (e *Engine) isRouter(addr string) bool {
	_, ok := e.routers[addr]
	return ok
}

// leg returns the non-quote mint and the event type of a record.
func (e *Engine) leg(raw *domain.RawSwap) (string, domain.EventType) {
	if raw.SwapFromMint == e.quote {
		return raw.SwapToMint, domain.EventBuy
	}
	if raw.SwapToMint == e.quote {
		return raw.SwapFromMint, domain.EventSell
	}
	return raw.SwapToMint, domain.EventBuy
}

// keep reports whether a record trades against the quote asset and a token that is
// not blacklisted.
func (e *Engine) keep(raw *domain.RawSwap) bool {
	if raw.SwapFromMint != e.quote && raw.SwapToMint != e.quote {
		return false
	}
	token, _ := e.leg(raw)
	_, blocked := e.blacklist[token]
	return !blocked
}

// build converts a kept record into a swap. Returns nil for records that cannot be
// attributed to a wallet.
func (e *Engine) build(r *record, prices PriceLookup) (*domain.Swap, error) {
	raw := &r.raw
	if r.swapper == "" || raw.TxID == "" {
		return nil, nil
	}

	token, event := e.leg(raw)
	if !solana.IsValidAddress(r.swapper) || !solana.IsValidAddress(token) {
		return nil, nil
	}

	quoteAmount, tokenAmount := raw.SwapFromAmount, raw.SwapToAmount
	if event == domain.EventSell {
		quoteAmount, tokenAmount = raw.SwapToAmount, raw.SwapFromAmount
	}

	price, err := prices.PriceAt(raw.BlockTimestamp)
	if err != nil {
		return nil, fmt.Errorf("tx %s: %w", raw.TxID, err)
	}
	cost := quoteAmount.Mul(price)

	return &domain.Swap{
		TxHash:         raw.TxID,
		EventIndex:     r.eventIndex,
		WalletAddress:  r.swapper,
		TokenAddress:   token,
		BlockID:        raw.BlockID,
		Timestamp:      raw.BlockTimestamp.UTC(),
		EventType:      event,
		QuoteAmount:    quoteAmount,
		TokenAmount:    tokenAmount,
		CostUSD:        cost,
		PriceUSD:       metrics.Div(cost, tokenAmount),
		MultiSwapperTx: r.multiSwapperTx,
		ArbitrageTx:    r.arbitrageTx,
	}, nil
}

func earlier(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.Before(*cur) {
		return &t
	}
	return cur
}

func later(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.After(*cur) {
		return &t
	}
	return cur
}
