// Package cache is the redis-backed response cache for external APIs:
// FIPE catalog listings (brands/years/models) and raw shopping
// responses. Misses and redis outages are silent; every caller must be
// able to proceed with a direct call.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "cotador:"

// Entry wraps a cached value with its metadata.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Source    string          `json:"source"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Stats are cumulative cache counters for the health endpoint.
type Stats struct {
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Sets      int64     `json:"sets"`
	Errors    int64     `json:"errors"`
	Connected bool      `json:"connected"`
	LastError string    `json:"last_error,omitempty"`
	LastPing  time.Time `json:"last_ping"`
}

// Cache is the redis client wrapper. A nil *Cache is valid and behaves
// as an always-miss cache, which is how the system runs without redis.
type Cache struct {
	client *redis.Client
	mu     sync.Mutex
	stats  Stats
}

// New connects to redis. Connection problems are reported through
// Stats, not errors; the cache degrades to misses.
func New(addr, password string, db int) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})
	return &Cache{client: client, stats: Stats{Connected: true}}
}

// NewWithClient wraps an existing client (tests use miniredis here).
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client, stats: Stats{Connected: true}}
}

// Get unmarshals the cached value for key into out, reporting whether
// it was found and fresh.
func (c *Cache) Get(ctx context.Context, key string, out any) bool {
	if c == nil || c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.count(func(s *Stats) { s.Misses++ })
			return false
		}
		c.fail("get", err)
		return false
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.fail("decode", err)
		return false
	}
	if time.Now().After(entry.ExpiresAt) {
		c.count(func(s *Stats) { s.Misses++ })
		return false
	}
	if err := json.Unmarshal(entry.Data, out); err != nil {
		c.fail("decode", err)
		return false
	}
	c.count(func(s *Stats) { s.Hits++ })
	return true
}

// Set stores value under key with a TTL. Failures are logged and
// swallowed.
func (c *Cache) Set(ctx context.Context, key, source string, value any, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.fail("encode", err)
		return
	}
	now := time.Now().UTC()
	entry, err := json.Marshal(Entry{
		Data:      data,
		Source:    source,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		c.fail("encode", err)
		return
	}
	if err := c.client.Set(ctx, keyPrefix+key, entry, ttl).Err(); err != nil {
		c.fail("set", err)
		return
	}
	c.count(func(s *Stats) { s.Sets++ })
}

// Ping refreshes connectivity status for the health endpoint.
func (c *Cache) Ping(ctx context.Context) bool {
	if c == nil || c.client == nil {
		return false
	}
	err := c.client.Ping(ctx).Err()
	c.count(func(s *Stats) {
		s.Connected = err == nil
		s.LastPing = time.Now().UTC()
	})
	return err == nil
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) count(f func(*Stats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}

func (c *Cache) fail(op string, err error) {
	c.count(func(s *Stats) {
		s.Errors++
		s.LastError = err.Error()
	})
	log.Debug().Err(err).Str("op", op).Msg("cache degraded to direct call")
}
