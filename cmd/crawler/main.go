// Package main wires together the crawler service binary.
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
	"time"

	"go.uber.org/zap"

	"github.com/foodycrawl/foodycrawl/internal/api"
	"github.com/foodycrawl/foodycrawl/internal/clock/system"
	"github.com/foodycrawl/foodycrawl/internal/config"
	"github.com/foodycrawl/foodycrawl/internal/crawl"
	"github.com/foodycrawl/foodycrawl/internal/landing"
	"github.com/foodycrawl/foodycrawl/internal/logging"
	"github.com/foodycrawl/foodycrawl/internal/ratelimit"
	"github.com/foodycrawl/foodycrawl/internal/retry"
	"github.com/foodycrawl/foodycrawl/internal/scheduler"
	"github.com/foodycrawl/foodycrawl/internal/store/postgres"
	"github.com/foodycrawl/foodycrawl/internal/upstream"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := landing.NewStore(cfg.Landing.Dir, logger.Named("landing"))
	if err != nil {
		logger.Fatal("landing store init failed", zap.Error(err))
	}

	pacer := ratelimit.New(cfg.Upstream.MinDelay, cfg.Upstream.MaxDelay)
	policy := retry.NewPolicy(cfg.Upstream.MaxRetries+1, 250*time.Millisecond, 5*time.Second)
	client := upstream.NewClient(cfg.Upstream, pacer, policy, logger.Named("upstream"))

	orch := crawl.New(client, sink, system.New(), cfg.Crawl.MaxDeliveryIDsPerCity, logger.Named("crawl"))

	// Query endpoints need the database, the crawl itself does not. A missing
	// database degrades the read API instead of blocking crawls.
	var reader api.Reader
	store, err := postgres.Connect(ctx, cfg.DB, logger.Named("store"))
	if err != nil {
		logger.Warn("database unavailable, query endpoints disabled", zap.Error(err))
	} else {
		defer store.Close()
		reader = store
	}

	apiServer := api.NewServer(orch, reader, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.Schedule.Enabled {
		sched := scheduler.New(cfg.Schedule, orch, logger.Named("scheduler"))
		if err := sched.Start(ctx); err != nil {
			logger.Fatal("scheduler start failed", zap.Error(err))
		}
		defer sched.Stop()
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
