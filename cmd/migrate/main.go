package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/saviobatista/movement-logger/internal/config"
	"github.com/saviobatista/movement-logger/internal/db/migrations"
	"github.com/saviobatista/movement-logger/internal/observability"
)

// Migrator interface for testability
type Migrator interface {
	Migrate(ctx context.Context, list []*migrations.Migration) (int, error)
	Rollback(ctx context.Context, list []*migrations.Migration) (*migrations.Migration, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	dbURL := flag.String("db", cfg.DBConnStr, "Database connection string")
	rollback := flag.Bool("rollback", false, "Rollback the last migration")
	flag.Parse()

	logger := observability.MustLogger(cfg.LogLevel, cfg.LogFormat, "migrate")
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		logger.Error("failed to open database", zap.Error(err))
		os.Exit(1)
	}
	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to ping database", zap.Error(err))
		_ = db.Close()
		os.Exit(1)
	}

	err = execute(ctx, migrations.New(db, logger), *rollback, logger)
	_ = db.Close()
	if err != nil {
		logger.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
}

// execute applies pending migrations, or rolls back the last applied one
func execute(ctx context.Context, m Migrator, rollback bool, logger *zap.Logger) error {
	list := migrations.All()
	if rollback {
		last, err := m.Rollback(ctx, list)
		if errors.Is(err, migrations.ErrNothingToRollback) {
			logger.Info("nothing to roll back")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("rollback complete", zap.String("migration", last.Name))
		return nil
	}

	n, err := m.Migrate(ctx, list)
	if err != nil {
		return err
	}
	logger.Info("migrations complete", zap.Int("applied", n), zap.Int("known", len(list)))
	return nil
}
