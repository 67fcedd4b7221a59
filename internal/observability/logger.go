// Package observability builds the logger and Prometheus metrics shared by
// the commands.
package observability

import (
	"go.uber.org/zap"
)

// NewLogger builds a zap logger. Unknown levels fall back to info; format is
// "json" (default) or "console", which also switches to the development
// config.
func NewLogger(level, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.Encoding = "console"
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = lvl

	return cfg.Build()
}

// MustLogger is NewLogger for main packages; it falls back to a production
// logger if the configured one cannot be built.
func MustLogger(level, format, service string) *zap.Logger {
	logger, err := NewLogger(level, format)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.String("service", service))
}
