package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

// Client wraps the Dragonfly/Redis connection used for caching and webhook
// metrics. It is constructed once at process wiring time and passed to the
// components that need it; every operation is safe to call when the backing
// store is down or the client is nil.
type Client struct {
	rdb       *redis.Client
	available bool
}

// Options configures a cache client.
type Options struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// New connects to the cache server and pings it once to record availability.
func New(opts Options) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	})

	c := &Client{rdb: rdb}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if pong, err := rdb.Ping(ctx).Result(); err != nil {
		log.Warn("[Cache] Could not connect to cache server: ", err)
	} else {
		c.available = true
		log.Info("[Cache] Connected to cache server: ", pong)
	}
	return c
}

// NewFromEnv builds a client from CACHE_HOST / CACHE_PORT.
func NewFromEnv() *Client {
	return New(Options{
		Host: env.GetEnv("CACHE_HOST", "localhost"),
		Port: env.GetEnv("CACHE_PORT", "6379"),
	})
}

// IsAvailable reports whether the initial connection check succeeded.
func (c *Client) IsAvailable() bool {
	return c != nil && c.available && c.rdb != nil
}

// Redis exposes the underlying client for callers that need richer commands
// (hashes, sorted sets). Returns nil when the cache is unavailable.
func (c *Client) Redis() *redis.Client {
	if !c.IsAvailable() {
		return nil
	}
	return c.rdb
}

// Set stores a value with the given expiration time.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a string value by key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if !c.IsAvailable() {
		return "", redis.Nil
	}
	return c.rdb.Get(ctx, key).Result()
}

// Delete removes a key.
func (c *Client) Delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}
	return c.rdb.Del(ctx, key).Err()
}
