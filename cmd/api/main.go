package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/config"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/infra"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/logging"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/reconciliation"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/runlock"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/scheduler"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	srv, err := server.New(cfg, db, cache, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	// Daily compliance jobs. The run locks keep replicated deployments from
	// double-processing; both jobs are idempotent either way.
	jobs := scheduler.New(24*time.Hour, 30*time.Minute, logger)
	jobs.Register(scheduler.Job{
		Name: "dormancy-daily-processing",
		Lock: runlock.New(cache, "dormancy-daily-processing", cfg.RunLockTTL),
		Run: func(ctx context.Context) error {
			_, err := srv.Services().Dormancy.RunDailyProcessing(ctx)
			return err
		},
	})
	jobs.Register(scheduler.Job{
		Name: "trust-account-reconciliation",
		Lock: runlock.New(cache, "trust-account-reconciliation", cfg.RunLockTTL),
		Run: func(ctx context.Context) error {
			_, err := srv.Services().Reconciliation.Run(ctx, reconciliation.RunInput{
				AsOf:         time.Now().UTC(),
				ReconciledBy: "scheduler",
			})
			return err
		},
	})

	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go jobs.Start(schedCtx)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
