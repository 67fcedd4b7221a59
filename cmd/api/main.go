package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/saviobatista/movement-logger/internal/auth"
	"github.com/saviobatista/movement-logger/internal/config"
	"github.com/saviobatista/movement-logger/internal/db"
	"github.com/saviobatista/movement-logger/internal/httpapi"
	"github.com/saviobatista/movement-logger/internal/nats"
	"github.com/saviobatista/movement-logger/internal/observability"
	"github.com/saviobatista/movement-logger/internal/parser"
	"github.com/saviobatista/movement-logger/internal/redis"
	"github.com/saviobatista/movement-logger/internal/uploads"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := observability.MustLogger(cfg.LogLevel, cfg.LogFormat, "api")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	feed, ok := parser.LookupFeed(cfg.FeedName)
	if !ok {
		return fmt.Errorf("unknown feed %q", cfg.FeedName)
	}

	dbClient, err := db.New(cfg.DBConnStr)
	if err != nil {
		return fmt.Errorf("failed to create database client: %w", err)
	}
	defer dbClient.Close()

	cache, err := redis.New(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to create Redis client: %w", err)
	}
	defer cache.Close()

	svcOpts := []uploads.Option{
		uploads.WithCache(cache),
		uploads.WithParser(parser.New(parser.WithFeed(feed), parser.WithWorkers(cfg.ParseWorkers))),
		uploads.WithMetrics(observability.NewMetrics()),
		uploads.WithEncoding(cfg.FeedEncoding),
		uploads.WithLogger(logger),
	}
	// upload events are optional for the API
	if natsClient, err := nats.New(cfg.NATSURL, logger); err != nil {
		logger.Warn("upload events disabled", zap.Error(err))
	} else {
		defer natsClient.Close()
		svcOpts = append(svcOpts, uploads.WithPublisher(natsClient))
	}

	svc := uploads.New(dbClient, svcOpts...)
	ready := func(ctx context.Context) error {
		if err := dbClient.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if err := cache.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}

	srv := httpapi.NewServer(cfg.HTTPAddr, svc, auth.New(cache), ready, nil, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
