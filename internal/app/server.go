package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"solana-wallet-analytics/internal/observability"
)

// MetricsMux serves /metrics and /health.
func MetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// MetricsServer is the background metrics endpoint. A nil server is a no-op.
type MetricsServer struct {
	srv    *http.Server
	logger *zap.Logger
}

// ServeMetrics starts the metrics endpoint on addr. An empty addr disables it.
func ServeMetrics(addr string, logger *zap.Logger) *MetricsServer {
	if addr == "" {
		return nil
	}
	s := &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           MetricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return s
}

// Shutdown stops the metrics endpoint.
func (s *MetricsServer) Shutdown(ctx context.Context) {
	if s == nil {
		return
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("metrics server shutdown", zap.Error(err))
	}
}
