package testutils

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FakeRedis is an in-memory stand-in for the go-redis client. Setting Err
// makes every command fail with it.
type FakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	Err  error
}

// NewFakeRedis creates an empty FakeRedis
func NewFakeRedis() *FakeRedis {
	return &FakeRedis{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (f *FakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	if f.Err != nil {
		return redis.NewStatusResult("", f.Err)
	}
	return redis.NewStatusResult("PONG", nil)
}

func (f *FakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.Err != nil {
		return redis.NewStatusResult("", f.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	default:
		f.data[key] = fmt.Sprint(v)
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *FakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.Err != nil {
		return redis.NewStringResult("", f.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *FakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.Err != nil {
		return redis.NewIntResult(0, f.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			delete(f.ttls, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *FakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	if f.Err != nil {
		return redis.NewIntResult(0, f.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (f *FakeRedis) Close() error {
	return nil
}

// Keys returns how many keys are stored
func (f *FakeRedis) Keys() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data)
}

// TTL returns the expiration the key was last set with
func (f *FakeRedis) TTL(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}
