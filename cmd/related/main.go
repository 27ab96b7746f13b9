package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"solana-wallet-analytics/internal/app"
	"solana-wallet-analytics/internal/config"
	"solana-wallet-analytics/internal/logging"
	"solana-wallet-analytics/internal/related"
	"solana-wallet-analytics/internal/solana"
)

func main() {
	var common app.Common
	common.Register(flag.CommandLine)
	wallet := flag.String("wallet", "", "Target wallet address")
	tokenLimit := flag.Int("token-limit", config.EnvInt("RELATED_TOKEN_LIMIT", related.DefaultTokenLimit), "Traded tokens of the target to scan")
	workers := flag.Int("workers", config.EnvInt("RELATED_WORKERS", related.DefaultWorkers), "Tokens scanned concurrently")
	blockWindow := flag.Int("block-window", config.EnvInt("RELATED_BLOCK_WINDOW", related.DefaultBlockWindow), "Blocks on each side of the target trade")
	minShared := flag.Int("min-shared", config.EnvInt("RELATED_MIN_SHARED", related.DefaultMinShared), "Tokens a neighbor must share with the target")
	skipPrograms := flag.Bool("skip-program-accounts", config.EnvBool("RELATED_SKIP_PROGRAM_ACCOUNTS", false), "Drop off-curve neighbor addresses")
	pretty := flag.Bool("pretty", false, "Indent the JSON output")
	flag.Parse()

	logger, err := logging.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("service", "related"))

	if _, err := solana.ParsePubkey(*wallet); err != nil {
		logger.Fatal("invalid --wallet", zap.String("wallet", *wallet), zap.Error(err))
	}

	metrics := app.ServeMetrics(common.MetricsAddr, logger)
	ctx, finish := app.WithSignals(context.Background(), logger)

	err = func() error {
		stores, err := app.OpenStores(ctx, common, logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		engine := related.NewEngine(stores.Wallets, stores.WalletTokens, stores.Trades, stores.Statistics, related.Options{
			TokenLimit:          *tokenLimit,
			Workers:             *workers,
			BlockWindow:         int64(*blockWindow),
			MinShared:           *minShared,
			SkipProgramAccounts: *skipPrograms,
			Logger:              logger,
		})
		defer engine.Close()

		res, err := engine.Find(ctx, *wallet)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		if *pretty {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(res)
	}()

	finish()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	metrics.Shutdown(shutdownCtx)
	cancel()

	switch {
	case errors.Is(err, related.ErrWalletNotFound):
		logger.Error("wallet not found", zap.String("wallet", *wallet))
		os.Exit(2)
	case err != nil && !errors.Is(err, context.Canceled):
		logger.Fatal("related search failed", zap.Error(err))
	}
}
