package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"solana-wallet-analytics/internal/app"
	"solana-wallet-analytics/internal/blockfill"
	"solana-wallet-analytics/internal/config"
	"solana-wallet-analytics/internal/feed"
	"solana-wallet-analytics/internal/lock"
	"solana-wallet-analytics/internal/logging"
	"solana-wallet-analytics/internal/prices"
	"solana-wallet-analytics/internal/reconcile"
	"solana-wallet-analytics/internal/solana"
	"solana-wallet-analytics/internal/storage"
)

// Cron specs per mode, with a seconds field.
var defaultSchedules = map[string]string{
	"reconcile": "0 */5 * * * *",
	"prices":    "15 * * * * *",
	"blockfill": "30 */10 * * * *",
}

type options struct {
	common     app.Common
	mode       string
	once       bool
	schedule   string
	jobTimeout time.Duration

	// reconcile
	feedEndpoint    string
	feedAPIKeys     []string
	window          time.Duration
	lag             time.Duration
	defaultSplit    int
	aggregatorSplit int
	pageLimit       int
	fetchWorkers    int
	routers         []string
	blacklist       []string
	startFrom       string
	redisAddr       string
	redisPassword   string
	redisDB         int

	// prices
	priceEndpoint string
	priceSymbol   string
	priceStart    string

	// blockfill
	rpcEndpoint      string
	blockfillBatch   int
	blockfillWorkers int
	blockfillBatches int
}

func main() {
	var o options
	o.common.Register(flag.CommandLine)
	flag.StringVar(&o.mode, "mode", config.Env("INGEST_MODE", "reconcile"), "Ingestion mode: reconcile, prices, or blockfill")
	flag.BoolVar(&o.once, "once", config.EnvBool("INGEST_ONCE", false), "Run a single pass and exit")
	flag.StringVar(&o.schedule, "schedule", config.Env("INGEST_SCHEDULE", ""), "Cron spec with seconds (default depends on mode)")
	flag.DurationVar(&o.jobTimeout, "job-timeout", config.EnvDuration("JOB_TIMEOUT", 30*time.Minute), "Upper bound for one scheduled pass")

	feedKeys := flag.String("feed-api-keys", config.Env("FEED_API_KEYS", ""), "Comma-separated feed API keys to register")
	routers := flag.String("routers", config.Env("ROUTERS", reconcile.DefaultRouter), "Comma-separated router addresses unwrapped in two-party transactions")
	blacklist := flag.String("blacklist", config.Env("TOKEN_BLACKLIST", ""), "Comma-separated token mints never imported")
	flag.StringVar(&o.feedEndpoint, "feed-endpoint", config.Env("FEED_ENDPOINT", ""), "Trade feed query endpoint")
	flag.DurationVar(&o.window, "window", config.EnvDuration("RECONCILE_WINDOW", reconcile.DefaultWindow), "Reconciliation window length")
	flag.DurationVar(&o.lag, "lag", config.EnvDuration("RECONCILE_LAG", reconcile.DefaultLag), "Distance kept behind now")
	flag.IntVar(&o.defaultSplit, "default-split", config.EnvInt("DEFAULT_FEED_SPLIT", reconcile.DefaultDefaultSplit), "Sub-intervals per window for the default feed")
	flag.IntVar(&o.aggregatorSplit, "aggregator-split", config.EnvInt("AGGREGATOR_FEED_SPLIT", reconcile.DefaultAggregatorSplit), "Sub-intervals per window for the aggregator feed")
	flag.IntVar(&o.pageLimit, "page-limit", config.EnvInt("FEED_PAGE_LIMIT", feed.DefaultPageLimit), "Rows per feed page")
	flag.IntVar(&o.fetchWorkers, "fetch-workers", config.EnvInt("FEED_FETCH_WORKERS", reconcile.DefaultFetchWorkers), "Concurrent feed requests")
	flag.StringVar(&o.startFrom, "start-from", config.Env("RECONCILE_START_FROM", ""), "Initial watermark when none is stored (RFC3339)")
	flag.StringVar(&o.redisAddr, "redis-addr", config.Env("REDIS_ADDR", ""), "Redis address for the reconcile lease (empty for a process-local lock)")
	flag.StringVar(&o.redisPassword, "redis-password", config.Env("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&o.redisDB, "redis-db", config.EnvInt("REDIS_DB", 0), "Redis database")

	flag.StringVar(&o.priceEndpoint, "price-endpoint", config.Env("PRICE_ENDPOINT", prices.DefaultEndpoint), "Kline REST endpoint")
	flag.StringVar(&o.priceSymbol, "price-symbol", config.Env("PRICE_SYMBOL", prices.DefaultSymbol), "Kline symbol of the quote asset")
	flag.StringVar(&o.priceStart, "price-start", config.Env("PRICE_START", ""), "First minute to collect when nothing is stored (RFC3339)")

	flag.StringVar(&o.rpcEndpoint, "rpc-endpoint", config.Env("SOLANA_RPC_ENDPOINT", ""), "Solana RPC HTTP endpoint")
	flag.IntVar(&o.blockfillBatch, "blockfill-batch", config.EnvInt("BLOCKFILL_BATCH", blockfill.DefaultBatchSize), "Transactions looked up per batch")
	flag.IntVar(&o.blockfillWorkers, "blockfill-workers", config.EnvInt("BLOCKFILL_WORKERS", blockfill.DefaultWorkers), "Concurrent RPC lookups")
	flag.IntVar(&o.blockfillBatches, "blockfill-max-batches", config.EnvInt("BLOCKFILL_MAX_BATCHES", 0), "Batches per pass (0 until nothing is left)")

	flag.Parse()
	o.feedAPIKeys = config.SplitList(*feedKeys)
	o.routers = config.SplitList(*routers)
	o.blacklist = config.SplitList(*blacklist)
	if o.schedule == "" {
		o.schedule = defaultSchedules[o.mode]
	}

	logger, err := logging.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("service", "ingest"), zap.String("mode", o.mode))

	metrics := app.ServeMetrics(o.common.MetricsAddr, logger)
	ctx, finish := app.WithSignals(context.Background(), logger)

	switch o.mode {
	case "reconcile":
		err = runReconcile(ctx, logger, o)
	case "prices":
		err = runPrices(ctx, logger, o)
	case "blockfill":
		err = runBlockfill(ctx, logger, o)
	default:
		err = fmt.Errorf("unknown mode: %s", o.mode)
	}

	finish()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	metrics.Shutdown(shutdownCtx)
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("ingest failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// runReconcile advances the feed watermark window by window.
func runReconcile(ctx context.Context, logger *zap.Logger, o options) error {
	if o.feedEndpoint == "" {
		return errors.New("--feed-endpoint is required for reconcile mode")
	}

	stores, err := app.OpenStores(ctx, o.common, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	if err := registerFeedKeys(ctx, stores.Feeds, o.feedAPIKeys, logger); err != nil {
		return err
	}
	if err := initWatermark(ctx, stores.Feeds, o.startFrom, logger); err != nil {
		return err
	}

	locker, closeLocker, err := newLocker(ctx, o, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	rotator := feed.NewRotator(stores.Feeds, func(apiKey string) feed.Source {
		return feed.NewHTTPSource(o.feedEndpoint, apiKey)
	}, logger)
	fetcher := reconcile.NewFetcher(reconcile.FetcherOptions{
		DefaultSplit:    o.defaultSplit,
		AggregatorSplit: o.aggregatorSplit,
		PageLimit:       o.pageLimit,
		Workers:         o.fetchWorkers,
		Logger:          logger,
	})
	defer fetcher.Close()
	engine := reconcile.NewEngine(reconcile.Options{
		Routers:   o.routers,
		Blacklist: o.blacklist,
	})
	importer := reconcile.NewImporter(stores.Wallets, stores.Tokens, stores.Swaps, stores.Archive, logger)
	runner := reconcile.NewRunner(stores.Feeds, stores.Prices, rotator, fetcher, engine, importer, reconcile.RunnerOptions{
		Window: o.window,
		Lag:    o.lag,
		Locker: locker,
		Logger: logger,
	})

	return app.RunScheduled(ctx, "reconcile", o.schedule, o.once, o.jobTimeout, func(ctx context.Context) error {
		windows, err := runner.Run(ctx)
		logger.Info("reconcile pass finished", zap.Int("windows", windows))
		return err
	}, logger)
}

// runPrices collects quote asset prices up to the current minute.
func runPrices(ctx context.Context, logger *zap.Logger, o options) error {
	var start time.Time
	if o.priceStart != "" {
		t, err := time.Parse(time.RFC3339, o.priceStart)
		if err != nil {
			return fmt.Errorf("parse price-start: %w", err)
		}
		start = t
	}

	stores, err := app.OpenStores(ctx, o.common, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	collector := prices.NewCollector(stores.Prices, prices.CollectorOptions{
		Endpoint:  o.priceEndpoint,
		Symbol:    o.priceSymbol,
		StartTime: start,
		Logger:    logger,
	})
	return app.RunScheduled(ctx, "prices", o.schedule, o.once, o.jobTimeout, func(ctx context.Context) error {
		_, err := collector.Run(ctx)
		return err
	}, logger)
}

// runBlockfill resolves the slot of swaps imported without one.
func runBlockfill(ctx context.Context, logger *zap.Logger, o options) error {
	if o.rpcEndpoint == "" {
		return errors.New("--rpc-endpoint is required for blockfill mode")
	}

	stores, err := app.OpenStores(ctx, o.common, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	backfiller := blockfill.NewBackfiller(stores.Swaps, solana.NewHTTPClient(o.rpcEndpoint), blockfill.Options{
		BatchSize:  o.blockfillBatch,
		Workers:    o.blockfillWorkers,
		MaxBatches: o.blockfillBatches,
		Logger:     logger,
	})
	defer backfiller.Close()

	return app.RunScheduled(ctx, "blockfill", o.schedule, o.once, o.jobTimeout, func(ctx context.Context) error {
		_, err := backfiller.Run(ctx)
		return err
	}, logger)
}

// registerFeedKeys stores configured credentials that are not known yet.
func registerFeedKeys(ctx context.Context, feeds storage.FeedStore, keys []string, logger *zap.Logger) error {
	added := 0
	for _, key := range keys {
		_, err := feeds.AddAccount(ctx, key)
		if errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return fmt.Errorf("register feed account: %w", err)
		}
		added++
	}
	if added > 0 {
		logger.Info("feed accounts registered", zap.Int("added", added))
	}
	return nil
}

// initWatermark sets the watermark from startFrom when none is stored.
func initWatermark(ctx context.Context, feeds storage.FeedStore, startFrom string, logger *zap.Logger) error {
	if startFrom == "" {
		return nil
	}
	_, err := feeds.GetState(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load watermark: %w", err)
	}

	t, err := time.Parse(time.RFC3339, startFrom)
	if err != nil {
		return fmt.Errorf("parse start-from: %w", err)
	}
	t = t.UTC().Truncate(time.Minute)
	if err := feeds.SetParsedUntil(ctx, t); err != nil {
		return fmt.Errorf("initialise watermark: %w", err)
	}
	logger.Info("watermark initialised", zap.Time("parsed_until", t))
	return nil
}

// newLocker returns the Redis lease locker, or a process-local one without Redis.
func newLocker(ctx context.Context, o options, logger *zap.Logger) (lock.Locker, func(), error) {
	if o.redisAddr == "" {
		return lock.NewMemoryLocker(), func() {}, nil
	}
	client, err := lock.NewRedisClient(ctx, o.redisAddr, o.redisPassword, o.redisDB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("close redis", zap.Error(err))
		}
	}
	return lock.NewRedisLocker(client, "wallet-analytics:", logger), closeFn, nil
}
