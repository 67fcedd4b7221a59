package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/saviobatista/movement-logger/internal/auth"
	"github.com/saviobatista/movement-logger/internal/config"
	"github.com/saviobatista/movement-logger/internal/redis"
)

// Tokens issues and revokes API tokens
type Tokens interface {
	Issue(ctx context.Context, userID string, ttl time.Duration) (string, error)
	Revoke(ctx context.Context, token string) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	user := flag.String("user", "", "user id to issue a token for")
	ttl := flag.Duration("ttl", cfg.TokenTTL, "token lifetime")
	revoke := flag.String("revoke", "", "token to revoke")
	flag.Parse()

	cache, err := redis.New(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := run(ctx, auth.New(cache), *user, *revoke, *ttl, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, tokens Tokens, user, revoke string, ttl time.Duration, out io.Writer) error {
	switch {
	case revoke != "":
		if err := tokens.Revoke(ctx, revoke); err != nil {
			return fmt.Errorf("failed to revoke token: %w", err)
		}
		_, err := fmt.Fprintln(out, "revoked")
		return err
	case user != "":
		token, err := tokens.Issue(ctx, user, ttl)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, token)
		return err
	default:
		return fmt.Errorf("one of -user or -revoke is required")
	}
}
