// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Config defines retry behavior.
type Config struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterEnabled bool
}

// DefaultConfig returns production retry settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    5,
		InitialDelay:  2 * time.Second,
		MaxDelay:      60 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so WithBackoff returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// WithBackoff executes fn until it succeeds, returns a Permanent error, the attempts
// run out or ctx is done.
func WithBackoff(ctx context.Context, cfg Config, logger *zap.Logger, operation string, fn func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retries",
					zap.String("operation", operation),
					zap.Int("attempts", attempt))
			}
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt == cfg.MaxRetries {
			break
		}

		delay := Backoff(cfg, attempt)
		logger.Warn("operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", cfg.MaxRetries),
			zap.Duration("retry_in", delay),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, cfg.MaxRetries, lastErr)
}

// Backoff returns the delay before the attempt following attempt (1-based).
func Backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	// +/-15% spread
	if cfg.JitterEnabled {
		delay = delay*0.85 + rand.Float64()*0.3*delay
	}

	return time.Duration(delay)
}
