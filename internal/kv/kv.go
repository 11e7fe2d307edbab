// Package kv constructs the shared Redis client used by caching, rate
// limiting and readiness checks.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout = 2 * time.Second
	ioTimeout   = time.Second
)

// ErrNotConfigured is returned by Ping when no Redis URL was supplied.
var ErrNotConfigured = errors.New("kv: not configured")

// Open parses rawURL and returns a client with short network timeouts. An
// empty URL yields a nil client and no error.
func Open(rawURL string) (*redis.Client, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("kv: parse url: %w", err)
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = ioTimeout
	opts.WriteTimeout = ioTimeout
	return redis.NewClient(opts), nil
}

// Ping checks connectivity within timeout.
func Ping(ctx context.Context, client *redis.Client, timeout time.Duration) error {
	if client == nil {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Ping(ctx).Err()
}
