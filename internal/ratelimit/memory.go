package ratelimit

import (
	"context"
	"sync"
	"time"
)

const pruneThreshold = 4096

// Memory is an in-process Limiter. It is meant for tests and single-process
// deployments; counters are not shared between processes.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets map[string]bucket
}

type bucket struct {
	count     int64
	expiresAt int64
}

// MemoryOption configures Memory behavior.
type MemoryOption func(*Memory)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) MemoryOption {
	return func(m *Memory) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMemory constructs an empty in-process limiter.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{now: time.Now, buckets: make(map[string]bucket)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hit implements Limiter.
func (m *Memory) Hit(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := m.now()
	start, seconds := Window(now, window)
	k := BucketKey(key, start)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.buckets) >= pruneThreshold {
		m.pruneLocked(now.Unix())
	}
	b := m.buckets[k]
	if b.expiresAt == 0 {
		b.expiresAt = start + seconds
	}
	b.count++
	m.buckets[k] = b
	return decide(b.count, limit, start, seconds), nil
}

func (m *Memory) pruneLocked(now int64) {
	for k, b := range m.buckets {
		if b.expiresAt <= now {
			delete(m.buckets, k)
		}
	}
}

// Len reports the number of live buckets.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
