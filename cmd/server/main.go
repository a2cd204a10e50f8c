package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/api"
	"github.com/empresamix/mixbi/internal/cache"
	"github.com/empresamix/mixbi/internal/config"
	"github.com/empresamix/mixbi/internal/cube"
	"github.com/empresamix/mixbi/internal/logging"
	"github.com/empresamix/mixbi/internal/metrics"
	"github.com/empresamix/mixbi/internal/pipeline"
	"github.com/empresamix/mixbi/internal/repository"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging, "mixbi")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	clock := clockwork.NewRealClock()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace)
	}

	log.Info("initializing database", zap.String("path", cfg.Database.Path))
	db, err := repository.InitDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	defer db.Close()

	fetchLog := repository.NewFetchLogRepo(db)
	if cfg.Database.FetchLogRetention > 0 {
		cutoff := clock.Now().Add(-cfg.Database.FetchLogRetention)
		if n, err := fetchLog.DeleteBefore(ctx, cutoff); err != nil {
			log.Warn("prune fetch log", zap.Error(err))
		} else if n > 0 {
			log.Info("pruned fetch log", zap.Int("deleted", n), zap.Time("before", cutoff))
		}
	}

	store, closeStore, err := openCache(ctx, cfg.Cache, db, clock, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("close cache", zap.Error(err))
		}
	}()
	log.Info("cache ready", zap.String("backend", cfg.Cache.Backend), zap.Duration("ttl", cfg.Cache.TTL))

	client := cube.New(cube.Config{
		BaseURL:         cfg.Cube.BaseURL,
		Client:          cfg.Cube.Client,
		APIID:           cfg.Cube.APIID,
		Timeout:         cfg.Cube.Timeout,
		RemediationPath: cfg.Cube.Retry.RemediationPath,
		Policy: cube.RetryPolicy{
			MaxAttempts:        cfg.Cube.Retry.MaxAttempts,
			BaseDelay:          cfg.Cube.Retry.BaseDelay,
			ConflictDelay:      cfg.Cube.Retry.ConflictDelay,
			ConflictSignatures: cfg.Cube.Retry.ConflictSignatures,
		},
		BreakerFailures: cfg.Cube.Breaker.Failures,
		BreakerTimeout:  cfg.Cube.Breaker.Timeout,
	}, log,
		cube.WithClock(clock),
		cube.WithMetrics(collector),
		cube.WithRecorder(fetchLog),
	)

	source := cube.NewCachedSource(client, cache.NewInstrumented(store, collector, log), log)
	svc := pipeline.New(source, log,
		pipeline.WithClock(clock),
		pipeline.WithMetrics(collector),
		pipeline.WithCubes(pipeline.Cubes{
			Invoices: cfg.Cube.Views.Invoices,
			Budgets:  cfg.Cube.Views.Budgets,
			Orders:   cfg.Cube.Views.Orders,
		}),
	)

	router := api.NewRouter(api.Deps{
		Pipeline: svc,
		FetchLog: fetchLog,
		Breakers: client,
		Metrics:  collector,
		Log:      log,
	})

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("cube", cfg.Cube.BaseURL),
			zap.String("api", "http://localhost"+srv.Addr+"/api/v1"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
