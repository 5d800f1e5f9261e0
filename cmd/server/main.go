package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/salonwise/internal/auth"
	"github.com/mmynk/salonwise/internal/config"
	"github.com/mmynk/salonwise/internal/handler"
	"github.com/mmynk/salonwise/internal/ledger"
	"github.com/mmynk/salonwise/internal/metrics"
	"github.com/mmynk/salonwise/internal/service"
	"github.com/mmynk/salonwise/internal/storage/sqlite"
	"github.com/mmynk/salonwise/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup()
		return err
	}
	logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	m := metrics.New(prometheus.DefaultRegisterer)

	var deadLetter ledger.DeadLetter = ledger.LogDeadLetter{}
	if cfg.RedisURL != "" {
		rdb, err := ledger.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		deadLetter = ledger.NewRedisDeadLetter(rdb)
		slog.Info("Redis dead-letter queue enabled")
	}

	wallets := ledger.New(store,
		ledger.WithMaxRetries(cfg.LedgerMaxRetries),
		ledger.WithMetrics(m),
	)
	reconciler := ledger.NewReconciler(wallets, store,
		ledger.WithInterval(cfg.ReconcileInterval),
		ledger.WithBatchSize(cfg.ReconcileBatchSize),
		ledger.WithMaxAttempts(cfg.ReconcileMaxAttempts),
		ledger.WithDeadLetter(deadLetter),
		ledger.WithReconcilerMetrics(m),
	)
	reconcilerDone := reconciler.Start(ctx)

	h := handler.New(
		service.NewBookingService(store, wallets, reconciler, m),
		service.NewCheckoutService(wallets),
		wallets,
		reconciler,
	)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: h2c.NewHandler(h.Router(jwtManager, prometheus.DefaultGatherer), &http2.Server{}),
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			<-reconcilerDone
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
	<-reconcilerDone
	slog.Info("Server stopped")
	return nil
}
