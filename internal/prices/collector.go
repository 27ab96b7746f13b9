package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/observability"
	"solana-wallet-analytics/internal/retry"
	"solana-wallet-analytics/internal/storage"
)

// Collector defaults.
const (
	DefaultEndpoint = "https://api.binance.com"
	DefaultSymbol   = "SOLUSDT"
	// MaxCandles is the exchange's per-request kline limit.
	MaxCandles = 1000
)

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	Endpoint   string
	Symbol     string
	Token      string    // token the prices are stored under
	StartTime  time.Time // first minute when nothing is stored yet
	HTTPClient *http.Client
	Retry      retry.Config
	Logger     *zap.Logger
	Now        func() time.Time
}

// Collector pulls 1-minute klines and stores their close prices.
type Collector struct {
	store storage.PriceStore
	opts  CollectorOptions
}

// NewCollector creates a Collector writing to store.
func NewCollector(store storage.PriceStore, opts CollectorOptions) *Collector {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Symbol == "" {
		opts.Symbol = DefaultSymbol
	}
	if opts.Token == "" {
		opts.Token = domain.QuoteMint
	}
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Retry.MaxRetries == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Collector{store: store, opts: opts}
}

// Run collects every minute from the latest stored one up to now. Returns the number
// of prices newly stored.
func (c *Collector) Run(ctx context.Context) (int, error) {
	start := c.opts.StartTime.UTC()
	latest, err := c.store.Latest(ctx, c.opts.Token)
	switch {
	case err == nil:
		start = latest.Minute
	case !errors.Is(err, storage.ErrNotFound):
		return 0, fmt.Errorf("load latest price: %w", err)
	}

	end := c.opts.Now().UTC()
	total := 0
	for current := start; current.Before(end); {
		next := current.Add(MaxCandles * time.Minute)
		if next.After(end) {
			next = end
		}

		var candles []*domain.TokenPrice
		err := retry.WithBackoff(ctx, c.opts.Retry, c.opts.Logger, "fetch klines", func() error {
			var ferr error
			candles, ferr = c.fetch(ctx, current, next)
			return ferr
		})
		if err != nil {
			return total, err
		}

		n, err := c.store.InsertIgnore(ctx, candles)
		if err != nil {
			return total, fmt.Errorf("store prices: %w", err)
		}
		total += n
		observability.RecordPricesCollected(n)

		c.opts.Logger.Debug("prices collected",
			zap.Time("from", current),
			zap.Time("to", next),
			zap.Int("candles", len(candles)),
			zap.Int("stored", n))
		current = next
	}

	return total, nil
}

func (c *Collector) fetch(ctx context.Context, from, to time.Time) ([]*domain.TokenPrice, error) {
	q := url.Values{}
	q.Set("symbol", c.opts.Symbol)
	q.Set("interval", "1m")
	q.Set("startTime", strconv.FormatInt(from.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(to.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(MaxCandles))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.Endpoint+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("klines status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, retry.Permanent(fmt.Errorf("klines status %d: %s", resp.StatusCode, string(body)))
	}

	return parseKlines(c.opts.Token, body)
}

// parseKlines reads [openTime, open, high, low, close, ...] rows into close prices.
func parseKlines(token string, body []byte) ([]*domain.TokenPrice, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode klines: %w", err))
	}

	out := make([]*domain.TokenPrice, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			return nil, retry.Permanent(fmt.Errorf("kline has %d fields", len(row)))
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			return nil, retry.Permanent(fmt.Errorf("decode open time: %w", err))
		}
		var closePrice decimal.Decimal
		if err := json.Unmarshal(row[4], &closePrice); err != nil {
			return nil, retry.Permanent(fmt.Errorf("decode close price: %w", err))
		}
		out = append(out, &domain.TokenPrice{
			TokenAddress: token,
			Minute:       time.UnixMilli(openTime).UTC().Truncate(time.Minute),
			PriceUSD:     closePrice,
		})
	}
	return out, nil
}
