package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// buildMetricsRouter serves the process's Prometheus registry and a health
// check.
func buildMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"}) //nolint:errcheck
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// serveMetrics listens on addr until ctx is done. The listener is bound
// before returning so a bad address fails the command immediately.
func serveMetrics(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, eris.Wrapf(err, "metrics: listen %s", addr)
	}
	srv := &http.Server{
		Handler:           buildMetricsRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("metrics server stopped", zap.Error(err))
		}
	}()

	zap.L().Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}
