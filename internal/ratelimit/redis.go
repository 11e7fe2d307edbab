package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript increments the bucket and arms its expiry on first use, in one
// server-side step so a counter can never outlive its window.
var hitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// Redis is a Limiter shared by every process using the same server.
type Redis struct {
	client redis.Scripter
	now    func() time.Time
}

// NewRedis wraps client. now may be nil.
func NewRedis(client redis.Scripter, now func() time.Time) *Redis {
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, now: now}
}

// Hit implements Limiter.
func (r *Redis) Hit(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	start, seconds := Window(r.now(), window)
	count, err := hitScript.Run(ctx, r.client, []string{BucketKey(key, start)}, seconds).Int64()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis hit: %w", err)
	}
	return decide(count, limit, start, seconds), nil
}
