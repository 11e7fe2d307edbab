package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"qazna.org/authcore/internal/obs"
)

// Cache namespaces keys under a prefix and absorbs backend failures. Callers
// always fall back to the source of truth when a read does not hit.
type Cache struct {
	backend Backend
	prefix  string
	logger  *slog.Logger
	metrics *obs.Metrics
	sample  *rate.Sometimes
}

// Option configures Cache behavior.
type Option func(*Cache)

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records operation outcomes.
func WithMetrics(m *obs.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New wraps backend. A nil backend behaves like Noop.
func New(backend Backend, prefix string, opts ...Option) *Cache {
	if backend == nil {
		backend = Noop{}
	}
	c := &Cache{
		backend: backend,
		prefix:  prefix,
		logger:  slog.New(slog.DiscardHandler),
		sample:  &rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value and whether it was a hit.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.backend.Get(ctx, c.prefix+key)
	switch {
	case err == nil:
		c.metrics.CacheOperation("get", "hit")
		return b, true
	case errors.Is(err, ErrMiss):
		c.metrics.CacheOperation("get", "miss")
	default:
		c.fail(ctx, "get", key, err)
	}
	return nil, false
}

// Set stores value for ttl.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.backend.Set(ctx, c.prefix+key, value, ttl); err != nil {
		c.fail(ctx, "set", key, err)
		return
	}
	c.metrics.CacheOperation("set", "ok")
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.backend.Delete(ctx, c.prefix+key); err != nil {
		c.fail(ctx, "delete", key, err)
		return
	}
	c.metrics.CacheOperation("delete", "ok")
}

// GetJSON decodes a cached value into dst. Undecodable values count as a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	b, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		c.metrics.CacheOperation("get", "corrupt")
		c.logger.DebugContext(ctx, "discarding undecodable cache entry", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

// SetJSON encodes value and stores it for ttl.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	b, err := json.Marshal(value)
	if err != nil {
		c.logger.ErrorContext(ctx, "cache value not encodable", slog.String("key", key), slog.Any("error", err))
		return
	}
	c.Set(ctx, key, b, ttl)
}

func (c *Cache) fail(ctx context.Context, op, key string, err error) {
	c.metrics.CacheOperation(op, "error")
	c.metrics.BackendFailure("cache")
	c.sample.Do(func() {
		c.logger.WarnContext(ctx, "cache backend failure ignored",
			slog.String("op", op), slog.String("key", key), slog.Any("error", err))
	})
}
