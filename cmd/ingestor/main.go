package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/saviobatista/movement-logger/internal/capture"
	"github.com/saviobatista/movement-logger/internal/config"
	"github.com/saviobatista/movement-logger/internal/nats"
	"github.com/saviobatista/movement-logger/internal/observability"
	"github.com/saviobatista/movement-logger/internal/parser"
	"github.com/saviobatista/movement-logger/internal/types"
	"github.com/saviobatista/movement-logger/internal/uploads"
)

// Publisher interface for testability
type Publisher interface {
	PublishRawLog(raw *types.RawLog) error
}

func main() {
	files := flag.String("file", "", "comma-separated log files to publish instead of reading live feeds")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on; disabled when empty")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := observability.MustLogger(cfg.LogLevel, cfg.LogFormat, "ingestor")
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, *files, *metricsAddr, logger); err != nil {
		logger.Error("ingestor failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, files, metricsAddr string, logger *zap.Logger) error {
	feed, ok := parser.LookupFeed(cfg.FeedName)
	if !ok {
		return fmt.Errorf("unknown feed %q", cfg.FeedName)
	}

	paths := splitPaths(files)
	if len(paths) == 0 && len(cfg.Sources) == 0 {
		return errors.New("SOURCES environment variable or -file is required")
	}

	client, err := nats.New(cfg.NATSURL, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	metrics := observability.NewMetrics()

	if len(paths) > 0 {
		n, err := publishFiles(paths, client, cfg.FeedEncoding, metrics, logger)
		logger.Info("published files", zap.Int("published", n), zap.Int("files", len(paths)))
		return err
	}

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	capt := capture.New(cfg.Sources, capture.Options{
		HeaderMarker: feed.HeaderMarker,
		Logger:       logger,
	})
	if err := capt.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		publishReports(capt.Reports(), client, cfg.FeedEncoding, metrics, logger)
	}()

	logger.Info("ingestor started", zap.Strings("sources", cfg.Sources))
	<-ctx.Done()

	logger.Info("shutting down")
	capt.Stop()
	<-done
	return nil
}

func splitPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// newRawLog wraps decoded content for publishing
func newRawLog(source string, data []byte, encoding string, at time.Time) (*types.RawLog, error) {
	content, err := uploads.Decode(encoding, data)
	if err != nil {
		return nil, err
	}
	return &types.RawLog{
		ID:         uuid.NewString(),
		Source:     source,
		Content:    content,
		ReceivedAt: at.UTC(),
	}, nil
}

// publishReports forwards captured reports until the channel closes
func publishReports(reports <-chan capture.Report, pub Publisher, encoding string, metrics *observability.Metrics, logger *zap.Logger) int {
	published := 0
	for r := range reports {
		raw, err := newRawLog(r.Source, []byte(r.Content), encoding, r.Timestamp)
		if err != nil {
			logger.Error("failed to decode report", zap.String("source", r.Source), zap.Error(err))
			continue
		}
		if err := pub.PublishRawLog(raw); err != nil {
			logger.Error("failed to publish report", zap.String("source", r.Source), zap.Error(err))
			continue
		}
		metrics.RawLogsEmitted.Inc()
		published++
		logger.Debug("published report", zap.String("id", raw.ID), zap.String("source", r.Source), zap.Int("bytes", len(raw.Content)))
	}
	return published
}

// publishFiles publishes every file as one raw log. It stops at the first
// file that cannot be read.
func publishFiles(paths []string, pub Publisher, encoding string, metrics *observability.Metrics, logger *zap.Logger) (int, error) {
	published := 0
	for _, path := range paths {
		//nolint:gosec // paths come from the command line
		data, err := os.ReadFile(path)
		if err != nil {
			return published, fmt.Errorf("failed to read %s: %w", path, err)
		}
		raw, err := newRawLog(filepath.Base(path), data, encoding, time.Now())
		if err != nil {
			return published, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if err := pub.PublishRawLog(raw); err != nil {
			return published, fmt.Errorf("failed to publish %s: %w", path, err)
		}
		metrics.RawLogsEmitted.Inc()
		published++
		logger.Info("published file", zap.String("path", path), zap.String("id", raw.ID))
	}
	return published, nil
}
