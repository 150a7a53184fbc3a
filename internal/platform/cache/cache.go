// Package cache connects to Dragonfly/Redis, which holds the review locks
// shared by every server process.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-learn/internal/platform/config"
)

const (
	readTimeout  = 3 * time.Second
	writeTimeout = 3 * time.Second
)

// Cache is a connected Redis/Dragonfly client whose keys share one prefix.
type Cache struct {
	Client *redis.Client
	prefix string
}

// Options turns the cache configuration into client options.
func Options(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	opts.ReadTimeout = readTimeout
	opts.WriteTimeout = writeTimeout
	return opts, nil
}

// New connects to the configured cache and verifies it answers.
func New(ctx context.Context, cfg config.CacheConfig) (*Cache, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}
	return &Cache{Client: client, prefix: cfg.KeyPrefix}, nil
}

// Locker returns a locker storing its keys under the cache prefix.
// ttl bounds how long a crashed holder blocks others; wait bounds how long
// Lock retries before giving up.
func (c *Cache) Locker(ttl, wait time.Duration) *Locker {
	return &Locker{
		client: c.Client,
		prefix: c.prefix + "lock:",
		ttl:    ttl,
		wait:   wait,
	}
}

func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck pings the cache; it backs the readiness check.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
