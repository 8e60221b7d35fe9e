// Package reportcache keeps computed report results in Redis for a short
// time so repeated dashboard reads skip the event scan.
package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "trackly:report:"

// Cache stores JSON encoded report results. A nil *Cache is valid and
// caches nothing.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewClient creates a Redis client. Connections are opened lazily.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// New wraps client. Entries expire after ttl.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Key joins parts into a namespaced cache key.
func Key(parts ...string) string {
	return keyPrefix + strings.Join(parts, ":")
}

// Remember returns the cached value for key or computes, stores and returns
// it. Redis failures never fail the call: the value is computed instead.
// Errors from compute are returned as is and nothing is stored.
func Remember[T any](ctx context.Context, c *Cache, key string, compute func() (T, error)) (T, error) {
	if c == nil || c.client == nil {
		return compute()
	}

	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var cached T
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
		c.logger.Warn("Discarding undecodable cache entry", slog.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("Report cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	value, err := compute()
	if err != nil {
		return value, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Report cache encode failed", slog.String("key", key), slog.Any("error", err))
		return value, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Report cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return value, nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
