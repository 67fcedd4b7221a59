package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/saviobatista/movement-logger/internal/config"
	"github.com/saviobatista/movement-logger/internal/db"
	"github.com/saviobatista/movement-logger/internal/nats"
	"github.com/saviobatista/movement-logger/internal/observability"
	"github.com/saviobatista/movement-logger/internal/parser"
	"github.com/saviobatista/movement-logger/internal/redis"
	"github.com/saviobatista/movement-logger/internal/stats"
	"github.com/saviobatista/movement-logger/internal/types"
	"github.com/saviobatista/movement-logger/internal/uploads"
)

const durableName = "recorder"

// Ingester saves one raw log as an upload
type Ingester interface {
	Ingest(ctx context.Context, userID, source, content string) (*types.Upload, *parser.Result, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := observability.MustLogger(cfg.LogLevel, cfg.LogFormat, "recorder")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("recorder failed", zap.Error(err))
		os.Exit(1)
	}
}

// run records raw logs until ctx is done
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
	if err := dbClient.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}

	cache, err := redis.New(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to create Redis client: %w", err)
	}
	defer cache.Close()

	natsClient, err := nats.New(cfg.NATSURL, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close()

	clock := clockwork.NewRealClock()
	svc := uploads.New(dbClient,
		uploads.WithCache(cache),
		uploads.WithPublisher(natsClient),
		uploads.WithParser(parser.New(parser.WithFeed(feed), parser.WithWorkers(cfg.ParseWorkers))),
		uploads.WithMetrics(observability.NewMetrics()),
		uploads.WithClock(clock),
		uploads.WithLogger(logger),
	)

	st := stats.New(clock, logger)
	st.SetStore(dbClient)

	var wg sync.WaitGroup
	persistCtx, stopPersist := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		st.StartPersistence(persistCtx, cfg.StatsInterval)
	}()

	sub, err := natsClient.SubscribeRawLogs(durableName, recordHandler(ctx, svc, st, cfg.FeedUserID, clock, logger))
	if err != nil {
		stopPersist()
		wg.Wait()
		return err
	}

	logger.Info("recorder started", zap.String("feed", feed.Name), zap.String("user_id", cfg.FeedUserID))
	<-ctx.Done()

	logger.Info("shutting down")
	if err := sub.Drain(); err != nil {
		logger.Warn("failed to drain subscription", zap.Error(err))
	}
	stopPersist()
	wg.Wait()
	logger.Info("final statistics", zap.Stringer("stats", st))
	return nil
}

// recordHandler ingests each raw log. Logs without records are acknowledged
// and counted as failed; storage errors are returned for redelivery.
func recordHandler(ctx context.Context, svc Ingester, st *stats.Stats, userID string, clock clockwork.Clock, logger *zap.Logger) func(*types.RawLog) error {
	return func(raw *types.RawLog) error {
		st.IncrementRawLogs()
		start := clock.Now()
		upload, res, err := svc.Ingest(ctx, userID, raw.Source, raw.Content)
		st.AddProcessingTime(clock.Since(start))
		if res != nil {
			st.RecordResult(res)
		}

		switch {
		case errors.Is(err, uploads.ErrNoRecords):
			st.IncrementFailedLogs()
			logger.Warn("raw log has no records", zap.String("id", raw.ID), zap.String("source", raw.Source))
			return nil
		case err != nil:
			st.IncrementFailedLogs()
			return fmt.Errorf("failed to ingest raw log %s: %w", raw.ID, err)
		}

		st.RecordSaved(upload.RecordCount)
		logger.Info("recorded raw log",
			zap.String("id", raw.ID),
			zap.String("upload_id", upload.ID),
			zap.Int("records", upload.RecordCount),
			zap.Int("expected", upload.ExpectedTotal),
			zap.Duration("took", clock.Since(start)),
		)
		return nil
	}
}
