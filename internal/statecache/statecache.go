// Package statecache provides an optional Redis mirror for volatile
// runtime state: session activity metadata and heartbeat bookkeeping.
//
// Graceful fallback: when Redis is not configured or unreachable,
// every operation silently returns a zero value instead of blocking
// the business logic.
package statecache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes.
const (
	KeySession   = "okapi:session:"
	KeyHeartbeat = "okapi:heartbeat:"
	KeyCache     = "okapi:cache:"
)

// Cache wraps an optional Redis connection. The zero value (or a Cache
// built from an empty URL) is a valid no-op cache.
type Cache struct {
	mu     sync.RWMutex
	client *redis.Client
	logger *slog.Logger
}

// New connects to Redis at url. An empty url or a failed connection
// yields a disabled cache, never an error.
func New(url string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{logger: logger}

	if url == "" {
		return c
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("statecache: invalid redis url, cache disabled", "error", err)
		return c
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	cli := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cli.Ping(ctx).Err(); err != nil {
		logger.Warn("statecache: redis unreachable, cache disabled", "error", err)
		cli.Close()
		return c
	}

	c.client = cli
	logger.Info("statecache: connected", "url", url)
	return c
}

// Available reports whether the cache has a live connection.
func (c *Cache) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

// Close releases the connection if any.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

func (c *Cache) conn() *redis.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// Get reads a string value. Returns "" when disabled or missing.
func (c *Cache) Get(ctx context.Context, key string) string {
	cli := c.conn()
	if cli == nil {
		return ""
	}
	val, err := cli.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("statecache: get failed", "key", key, "error", err)
		}
		return ""
	}
	return val
}

// Set writes a string value with TTL. Returns false when disabled or failed.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	cli := c.conn()
	if cli == nil {
		return false
	}
	if err := cli.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("statecache: set failed", "key", key, "error", err)
		return false
	}
	return true
}

// Del deletes a key.
func (c *Cache) Del(ctx context.Context, key string) bool {
	cli := c.conn()
	if cli == nil {
		return false
	}
	if err := cli.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("statecache: del failed", "key", key, "error", err)
		return false
	}
	return true
}

// GetJSON reads a JSON value into out. Returns false when missing or invalid.
func (c *Cache) GetJSON(ctx context.Context, key string, out any) bool {
	raw := c.Get(ctx, key)
	if raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		c.logger.Warn("statecache: stale json dropped", "key", key, "error", err)
		return false
	}
	return true
}

// SetJSON writes a JSON-serialized value with TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("statecache: marshal failed", "key", key, "error", err)
		return false
	}
	return c.Set(ctx, key, string(data), ttl)
}

// SessionActivity is the mirrored per-session metadata.
type SessionActivity struct {
	Key        string    `json:"key"`
	LastActive time.Time `json:"last_active"`
	Turns      int       `json:"turns"`
}

// TouchSession records a completed turn for a session key.
func (c *Cache) TouchSession(ctx context.Context, key string) {
	var act SessionActivity
	c.GetJSON(ctx, KeySession+key, &act)
	act.Key = key
	act.LastActive = time.Now()
	act.Turns++
	c.SetJSON(ctx, KeySession+key, act, 7*24*time.Hour)
}

// LastHeartbeat returns the recorded time of the last heartbeat run,
// zero when unknown.
func (c *Cache) LastHeartbeat(ctx context.Context) time.Time {
	raw := c.Get(ctx, KeyHeartbeat+"last")
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// MarkHeartbeat records a heartbeat run at t.
func (c *Cache) MarkHeartbeat(ctx context.Context, t time.Time) {
	c.Set(ctx, KeyHeartbeat+"last", t.Format(time.RFC3339), 48*time.Hour)
}
