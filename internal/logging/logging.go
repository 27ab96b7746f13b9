// Package logging builds the process-wide zap logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"solana-wallet-analytics/internal/config"
)

// New builds a logger from LOG_LEVEL and LOG_ENCODING.
func New() (*zap.Logger, error) {
	level := config.Env("LOG_LEVEL", "info")
	encoding := config.Env("LOG_ENCODING", "json")

	cfg := zap.NewProductionConfig()
	cfg.Encoding = encoding
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
