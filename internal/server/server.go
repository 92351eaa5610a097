// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bookswap/internal/httpx"
	"bookswap/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// NewRouter returns a router with the middleware and operational endpoints
// every service shares. ws serves the live notification socket.
func NewRouter(ws http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Instrument)

	r.Get("/healthz", httpx.Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if ws != nil {
		r.Method(http.MethodGet, "/ws", ws)
	}
	return r
}

// OpenDB connects to PostgreSQL and runs migrate.
func OpenDB(ctx context.Context, url string, migrate func(context.Context, *sqlx.DB) error) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if migrate != nil {
		if err := migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Run serves h on port until ctx is cancelled, then drains in-flight
// requests.
func Run(ctx context.Context, port string, h http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
