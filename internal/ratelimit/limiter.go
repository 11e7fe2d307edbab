// Package ratelimit implements fixed-window request throttling.
package ratelimit

import (
	"context"
	"strconv"
	"time"
)

// Result is the outcome of one hit against a window.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is the epoch second at which the current window ends.
	Reset int64
}

// Limiter counts hits for key inside the current fixed window.
// Implementations must increment atomically across concurrent callers.
type Limiter interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Window returns the start of the fixed window containing now and its length
// in whole seconds. Windows shorter than a second are widened to one second.
func Window(now time.Time, window time.Duration) (start, seconds int64) {
	seconds = int64(window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	epoch := now.Unix()
	return epoch - epoch%seconds, seconds
}

// BucketKey appends the window start to key.
func BucketKey(key string, windowStart int64) string {
	return key + ":" + strconv.FormatInt(windowStart, 10)
}

// Key builds the limiter key for identifier under strategy.
func Key(prefix, strategy, identifier string) string {
	return prefix + strategy + ":" + identifier + ":global"
}

func decide(count int64, limit int, windowStart, seconds int64) Result {
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: int(remaining),
		Reset:     windowStart + seconds,
	}
}
