package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saviobatista/movement-logger/internal/types"
)

const (
	// PreviewTTL bounds how long a parsed preview is reused
	PreviewTTL = 30 * time.Minute
	// SummaryTTL bounds how long a date-range summary is reused
	SummaryTTL = 10 * time.Minute
)

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Close() error
}

// Client manages Redis connections and operations
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func tokenKey(token string) string { return "token:" + token }

// StoreToken maps a bearer token to its user for ttl
func (c *Client) StoreToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	return c.client.Set(ctx, tokenKey(token), userID, ttl).Err()
}

// LookupToken returns the user a token belongs to; ok is false for unknown
// or expired tokens.
func (c *Client) LookupToken(ctx context.Context, token string) (userID string, ok bool, err error) {
	userID, err = c.client.Get(ctx, tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up token: %w", err)
	}
	return userID, true, nil
}

// RevokeToken deletes a token
func (c *Client) RevokeToken(ctx context.Context, token string) error {
	return c.client.Del(ctx, tokenKey(token)).Err()
}

// setData marshals value and stores it under key
func (c *Client) setData(ctx context.Context, key string, value interface{}, ttl time.Duration, dataType string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s data: %w", dataType, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// getData retrieves data from Redis and unmarshals it into the target. found
// is false when the key does not exist.
func (c *Client) getData(ctx context.Context, key string, target interface{}, dataType string) (found bool, err error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s data: %w", dataType, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s data: %w", dataType, err)
	}
	return true, nil
}

func previewKey(digest string) string { return "preview:" + digest }

// StorePreview caches a parse preview under the digest of its input
func (c *Client) StorePreview(ctx context.Context, digest string, preview interface{}) error {
	return c.setData(ctx, previewKey(digest), preview, PreviewTTL, "preview")
}

// GetPreview loads a cached preview into target
func (c *Client) GetPreview(ctx context.Context, digest string, target interface{}) (bool, error) {
	return c.getData(ctx, previewKey(digest), target, "preview")
}

func generationKey(userID string) string { return "summary-gen:" + userID }

func summaryKey(userID string, gen int64, from, to time.Time) string {
	return fmt.Sprintf("summary:%s:%d:%d:%d", userID, gen, from.Unix(), to.Unix())
}

// SummaryGeneration returns the user's summary cache generation. Cached
// summaries of older generations are never read again.
func (c *Client) SummaryGeneration(ctx context.Context, userID string) (int64, error) {
	val, err := c.client.Get(ctx, generationKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get summary generation: %w", err)
	}
	gen, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid summary generation %q: %w", val, err)
	}
	return gen, nil
}

// InvalidateSummaries moves the user to a new summary cache generation
func (c *Client) InvalidateSummaries(ctx context.Context, userID string) error {
	return c.client.Incr(ctx, generationKey(userID)).Err()
}

// StoreSummary caches the daily summaries of a date range
func (c *Client) StoreSummary(ctx context.Context, userID string, gen int64, from, to time.Time, summaries []types.DailySummary) error {
	return c.setData(ctx, summaryKey(userID, gen, from, to), summaries, SummaryTTL, "summary")
}

// GetSummary returns cached daily summaries of a date range
func (c *Client) GetSummary(ctx context.Context, userID string, gen int64, from, to time.Time) ([]types.DailySummary, bool, error) {
	var summaries []types.DailySummary
	found, err := c.getData(ctx, summaryKey(userID, gen, from, to), &summaries, "summary")
	if err != nil || !found {
		return nil, false, err
	}
	return summaries, true, nil
}
