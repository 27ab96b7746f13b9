package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"solana-wallet-analytics/internal/aggregation"
	"solana-wallet-analytics/internal/app"
	"solana-wallet-analytics/internal/config"
	"solana-wallet-analytics/internal/logging"
)

func main() {
	var common app.Common
	common.Register(flag.CommandLine)
	mode := flag.String("mode", config.Env("AGGREGATE_MODE", "pipeline"), "Aggregation mode: pipeline or largebuy")
	once := flag.Bool("once", config.EnvBool("AGGREGATE_ONCE", false), "Run a single pass and exit")
	schedule := flag.String("schedule", config.Env("LARGEBUY_SCHEDULE", "0 0 * * * *"), "Cron spec with seconds for the large-buy job")
	jobTimeout := flag.Duration("job-timeout", config.EnvDuration("JOB_TIMEOUT", 30*time.Minute), "Upper bound for one large-buy pass")

	selectLimit := flag.Int("select-limit", config.EnvInt("SELECT_LIMIT", aggregation.DefaultSelectLimit), "Stale wallets selected per run")
	activeWithin := flag.Duration("active-within", config.EnvDuration("ACTIVE_WITHIN", aggregation.DefaultActiveWithin), "Only wallets active within this distance of now")
	fetchBatch := flag.Int("fetch-batch", config.EnvInt("FETCH_BATCH", aggregation.DefaultFetchBatch), "Wallets per aggregate fetch")
	fetchWorkers := flag.Int("fetch-workers", config.EnvInt("FETCH_WORKERS", aggregation.DefaultFetchWorkers), "Concurrent aggregate fetches")
	persistBatch := flag.Int("persist-batch", config.EnvInt("PERSIST_BATCH", aggregation.DefaultPersistBatch), "Wallets per bulk write")
	persistWorkers := flag.Int("persist-workers", config.EnvInt("PERSIST_WORKERS", aggregation.DefaultPersistWorkers), "Concurrent bulk writes")
	idleDelay := flag.Duration("idle-delay", config.EnvDuration("IDLE_DELAY", aggregation.DefaultIdleDelay), "Pause after a run that found nothing")
	largeBuyWorkers := flag.Int("largebuy-workers", config.EnvInt("LARGEBUY_WORKERS", aggregation.DefaultLargeBuyWorkers), "Concurrent large-buy wallets")
	flag.Parse()

	logger, err := logging.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("service", "aggregate"), zap.String("mode", *mode))

	metrics := app.ServeMetrics(common.MetricsAddr, logger)
	ctx, finish := app.WithSignals(context.Background(), logger)

	err = func() error {
		stores, err := app.OpenStores(ctx, common, logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		switch *mode {
		case "pipeline":
			p := aggregation.NewPipeline(stores.Wallets, stores.WalletTokens, stores.Statistics, aggregation.Options{
				SelectLimit:    *selectLimit,
				ActiveWithin:   *activeWithin,
				FetchBatch:     *fetchBatch,
				FetchWorkers:   *fetchWorkers,
				PersistBatch:   *persistBatch,
				PersistWorkers: *persistWorkers,
				IdleDelay:      *idleDelay,
				Logger:         logger,
			})
			defer p.Close()
			if *once {
				_, err := p.RunOnce(ctx)
				return err
			}
			logger.Info("starting aggregation loop")
			return p.Loop(ctx)

		case "largebuy":
			job := aggregation.NewLargeBuyJob(stores.WalletTokens, stores.Statistics, aggregation.LargeBuyOptions{
				Workers: *largeBuyWorkers,
				Logger:  logger,
			})
			defer job.Close()
			return app.RunScheduled(ctx, "largebuy", *schedule, *once, *jobTimeout, func(ctx context.Context) error {
				_, err := job.Run(ctx)
				return err
			}, logger)
		}
		return fmt.Errorf("unknown mode: %s", *mode)
	}()

	finish()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	metrics.Shutdown(shutdownCtx)
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("aggregate failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
