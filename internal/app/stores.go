// Package app holds the wiring shared by the binaries: store selection, the metrics
// server, signal handling and cron scheduling.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"go.uber.org/zap"

	"solana-wallet-analytics/internal/config"
	"solana-wallet-analytics/internal/storage"
	chstore "solana-wallet-analytics/internal/storage/clickhouse"
	"solana-wallet-analytics/internal/storage/memory"
	"solana-wallet-analytics/internal/storage/migrations"
	pgstore "solana-wallet-analytics/internal/storage/postgres"
)

// ErrNoPostgres is returned when neither a Postgres DSN nor in-memory storage is configured.
var ErrNoPostgres = errors.New("--postgres-dsn is required (use --use-memory for in-memory storage)")

// Common holds the flags every binary accepts.
type Common struct {
	PostgresDSN   string
	ClickhouseDSN string
	UseMemory     bool
	Migrate       bool
	MetricsAddr   string
}

// Register binds the common flags to fs with defaults from the environment.
func (c *Common) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.PostgresDSN, "postgres-dsn", config.Env("POSTGRES_DSN", ""), "PostgreSQL connection string")
	fs.StringVar(&c.ClickhouseDSN, "clickhouse-dsn", config.Env("CLICKHOUSE_DSN", ""), "ClickHouse connection string (optional trade archive)")
	fs.BoolVar(&c.UseMemory, "use-memory", config.EnvBool("USE_MEMORY", false), "Use in-memory storage instead of PostgreSQL")
	fs.BoolVar(&c.Migrate, "migrate", config.EnvBool("MIGRATE", false), "Apply embedded schema migrations on startup")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", config.Env("METRICS_ADDR", ":9090"), "Prometheus metrics HTTP address (empty to disable)")
}

// Stores is the set of stores a binary works against.
type Stores struct {
	Wallets      storage.WalletStore
	Tokens       storage.TokenStore
	Swaps        storage.SwapStore
	WalletTokens storage.WalletTokenStore
	Statistics   storage.StatisticStore
	Prices       storage.PriceStore
	Feeds        storage.FeedStore

	// Trades serves related-wallet scans: the ClickHouse archive when configured,
	// otherwise the swap store.
	Trades storage.TradeReader

	// Archive mirrors imported swaps. Nil without ClickHouse.
	Archive storage.TradeArchive

	closers []func()
}

// Close releases every connection opened by OpenStores.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// OpenStores builds in-memory stores or connects to Postgres and, when a DSN is set,
// ClickHouse.
func OpenStores(ctx context.Context, c Common, logger *zap.Logger) (*Stores, error) {
	if c.UseMemory {
		logger.Info("using in-memory storage")
		return memoryStores(), nil
	}
	if c.PostgresDSN == "" {
		return nil, ErrNoPostgres
	}

	s := &Stores{}
	pool, err := pgstore.NewPool(ctx, c.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	s.closers = append(s.closers, pool.Close)
	if c.Migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	swaps := pgstore.NewSwapStore(pool)
	s.Wallets = pgstore.NewWalletStore(pool)
	s.Tokens = pgstore.NewTokenStore(pool)
	s.Swaps = swaps
	s.WalletTokens = pgstore.NewWalletTokenStore(pool)
	s.Statistics = pgstore.NewStatisticStore(pool)
	s.Prices = pgstore.NewPriceStore(pool)
	s.Feeds = pgstore.NewFeedStore(pool)
	s.Trades = swaps

	if c.ClickhouseDSN == "" {
		return s, nil
	}
	conn, err := openClickhouse(ctx, c)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, func() {
		if err := conn.Close(); err != nil {
			logger.Warn("close clickhouse", zap.Error(err))
		}
	})
	archive := chstore.NewTradeArchive(conn)
	s.Archive = archive
	s.Trades = archive
	logger.Info("clickhouse trade archive enabled")
	return s, nil
}

func openClickhouse(ctx context.Context, c Common) (*chstore.Conn, error) {
	if c.Migrate {
		conn, err := migrations.RunClickhouseMigrations(ctx, c.ClickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		return conn, nil
	}
	conn, err := chstore.NewConn(ctx, c.ClickhouseDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	return conn, nil
}

func memoryStores() *Stores {
	wallets := memory.NewWalletStore()
	walletTokens := memory.NewWalletTokenStore()
	swaps := memory.NewSwapStore(walletTokens)
	return &Stores{
		Wallets:      wallets,
		Tokens:       memory.NewTokenStore(),
		Swaps:        swaps,
		WalletTokens: walletTokens,
		Statistics:   memory.NewStatisticStore(wallets),
		Prices:       memory.NewPriceStore(),
		Feeds:        memory.NewFeedStore(),
		Trades:       swaps,
	}
}
