package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownTimeout bounds a graceful shutdown after the first signal.
var ShutdownTimeout = 30 * time.Second

var (
	osExit = os.Exit
	exit   = osExit
)

// WithSignals returns a context cancelled on SIGINT or SIGTERM and a finish function the
// caller invokes once it has stopped. After the first signal, a second signal or
// ShutdownTimeout without finish exits the process.
func WithSignals(parent context.Context, logger *zap.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Error("received second signal, forcing immediate shutdown", zap.String("signal", sig.String()))
			exit(1)
		case <-time.After(ShutdownTimeout):
			logger.Error("graceful shutdown timed out, forcing exit", zap.Duration("timeout", ShutdownTimeout))
			exit(1)
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			close(done)
			signal.Stop(sigCh)
			cancel()
		})
	}
}
