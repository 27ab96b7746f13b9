package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"solana-wallet-analytics/internal/observability"
	"solana-wallet-analytics/internal/storage"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation     = "23505" // unique_violation
	pgErrForeignKeyViolation = "23503" // foreign_key_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	return hasCode(err, pgErrUniqueViolation)
}

// isForeignKeyError checks if error references a missing wallet or token.
func isForeignKeyError(err error) bool {
	return hasCode(err, pgErrForeignKeyViolation)
}

func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}

	// Use pgconn.PgError for reliable error code detection
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}

	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// observe records the duration and outcome of one store operation. Use it deferred
// with a pointer to the named error result.
func observe(operation string, began time.Time, errp *error) {
	err := *errp
	if isNotFoundError(err) || errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	observability.RecordDBQuery("postgres", operation, time.Since(began).Seconds(), err)
}

// sendBatch runs a batch inside tx and checks every statement. Returns rows affected.
func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) (int64, error) {
	results := tx.SendBatch(ctx, batch)
	var affected int64
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return affected, err
		}
		affected += tag.RowsAffected()
	}
	return affected, results.Close()
}
