package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/saviobatista/movement-logger/internal/config"
)

func TestRunUnknownFeed(t *testing.T) {
	err := run(context.Background(), &config.Config{FeedName: "XXXX"}, zap.NewNop())
	assert.ErrorContains(t, err, "unknown feed")
}

func TestRunUnreachableRedis(t *testing.T) {
	cfg := &config.Config{
		FeedName:  "SBIZ",
		DBConnStr: "postgres://u:p@127.0.0.1:1/db?sslmode=disable",
		RedisAddr: "127.0.0.1:1",
	}
	err := run(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "failed to create Redis client")
}
