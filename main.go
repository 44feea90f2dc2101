package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"api_artsale/api"
	"api_artsale/internal/config"
	"api_artsale/internal/lock"
	"api_artsale/internal/logging"
	"api_artsale/internal/reconcile"
	"api_artsale/internal/sales"
	"api_artsale/internal/storage/remote"
	"api_artsale/internal/storage/sqlite"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (default: search ./, ./config, /etc/artsale)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "error trying to start server: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Output: cfg.Log.Output, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]api.HealthCheck{}

	store, closeStore, err := openStore(ctx, cfg, logger, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(cfg, logger, checks)
	if err != nil {
		return err
	}
	defer closeLocker()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := sales.NewService(store, logger,
		sales.WithLocker(locker),
		sales.WithMetrics(sales.NewMetrics(reg)),
		sales.WithRetryPolicy(sales.RetryPolicy{
			MaxAttempts: cfg.Ledger.MaxAttempts,
			Base:        cfg.Ledger.RetryBase,
			Max:         cfg.Ledger.RetryMax,
		}),
	)

	if cfg.Ledger.ReconcileInterval > 0 {
		rec, err := reconcile.New(svc, reconcile.Config{
			Interval: cfg.Ledger.ReconcileInterval,
			MinAge:   cfg.Ledger.ReconcileMinAge,
		}, logger)
		if err != nil {
			return err
		}
		if err := rec.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := rec.Stop(); err != nil {
				logger.Error("failed to stop reconciler", zap.Error(err))
			}
		}()
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	api.InitRoutes(r, api.Dependencies{
		Service:      svc,
		Logger:       logger,
		Gatherer:     reg,
		HealthChecks: checks,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Store.Backend),
			zap.String("lock", cfg.Lock.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, checks map[string]api.HealthCheck) (sales.Store, func(), error) {
	switch cfg.Store.Backend {
	case "remote":
		rc := cfg.Store.Remote
		store, err := remote.New(remote.Config{
			BaseURL:   rc.BaseURL,
			AuthToken: rc.AuthToken,
			Timeout:   rc.Timeout,
			Breaker: remote.BreakerConfig{
				MaxRequests:         rc.BreakerHalfOpenN,
				Timeout:             rc.BreakerOpenFor,
				ConsecutiveFailures: rc.BreakerFailures,
			},
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		checks["remote_store"] = store.Ping
		closeFn := func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close remote store", zap.Error(err))
			}
		}
		return store, closeFn, nil

	case "sqlite":
		store, err := sqlite.New(ctx, cfg.Store.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		checks["sqlite"] = store.Ping
		closeFn := func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close sqlite store", zap.Error(err))
			}
		}
		return store, closeFn, nil
	}

	logger.Warn("using in-memory store, data is lost on restart")
	return sales.NewLocalStorage(), func() {}, nil
}

func openLocker(cfg *config.Config, logger *zap.Logger, checks map[string]api.HealthCheck) (sales.Locker, func(), error) {
	if cfg.Lock.Backend != "redis" {
		return lock.NewLocal(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	checks["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}

	locker := lock.NewRedis(client, lock.Options{
		Prefix:     lock.DefaultOptions().Prefix,
		Expiry:     cfg.Lock.Expiry,
		Tries:      cfg.Lock.Tries,
		RetryDelay: cfg.Lock.RetryDelay,
	}, logger)
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	return locker, closeFn, nil
}
