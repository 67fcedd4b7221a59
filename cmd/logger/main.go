package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/saviobatista/movement-logger/internal/config"
	"github.com/saviobatista/movement-logger/internal/nats"
	"github.com/saviobatista/movement-logger/internal/observability"
	"github.com/saviobatista/movement-logger/internal/storage"
	"github.com/saviobatista/movement-logger/internal/types"
)

const (
	durableName       = "logger"
	eventsDurableName = "logger-events"
)

// Archiver writes raw logs to disk
type Archiver interface {
	WriteRawLog(raw *types.RawLog) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := observability.MustLogger(cfg.LogLevel, cfg.LogFormat, "logger")
	defer func() { _ = logger.Sync() }()

	if err := runLogger(cfg, logger); err != nil {
		logger.Error("logger failed", zap.Error(err))
		os.Exit(1)
	}
}

// runLogger archives raw logs from NATS until SIGINT or SIGTERM
func runLogger(cfg *config.Config, logger *zap.Logger) error {
	store := storage.New(cfg.OutputDir, clockwork.NewRealClock(), logger)
	if err := store.Start(); err != nil {
		return fmt.Errorf("failed to start storage: %w", err)
	}
	defer func() {
		if err := store.Stop(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()

	client, err := nats.New(cfg.NATSURL, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	sub, err := client.SubscribeRawLogs(durableName, archiveHandler(store, logger))
	if err != nil {
		return err
	}
	defer func() { _ = sub.Drain() }()

	events, err := client.SubscribeUploadEvents(eventsDurableName, eventHandler(logger))
	if err != nil {
		return err
	}
	defer func() { _ = events.Drain() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("logger started", zap.String("output_dir", cfg.OutputDir))
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// archiveHandler writes every raw log; a failed write is redelivered
func archiveHandler(store Archiver, logger *zap.Logger) func(*types.RawLog) error {
	return func(raw *types.RawLog) error {
		if err := store.WriteRawLog(raw); err != nil {
			return fmt.Errorf("failed to archive raw log %s: %w", raw.ID, err)
		}
		logger.Debug("archived raw log", zap.String("id", raw.ID), zap.String("source", raw.Source))
		return nil
	}
}

// eventHandler keeps an audit trail of saved uploads in the service log
func eventHandler(logger *zap.Logger) func(*types.UploadEvent) error {
	return func(ev *types.UploadEvent) error {
		logger.Info("upload saved",
			zap.String("upload_id", ev.UploadID),
			zap.String("user_id", ev.UserID),
			zap.String("source", ev.Source),
			zap.Int("records", ev.RecordCount),
			zap.Time("saved_at", ev.SavedAt),
		)
		return nil
	}
}
