package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func exerciseBackend(t *testing.T, b Backend, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
	if err := b.Set(ctx, "k", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := b.Get(ctx, "k")
	if err != nil || string(got) != "v1" {
		t.Fatalf("Get after Set = %q, %v", got, err)
	}
	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("deleting absent key: %v", err)
	}

	if err := b.Set(ctx, "ttl", []byte("x"), time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	advance(2 * time.Second)
	if _, err := b.Get(ctx, "ttl"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryBackend(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	exerciseBackend(t, NewMemory(c.Now), func(d time.Duration) { c.now = c.now.Add(d) })
}

func TestMemoryBackendCopiesValues(t *testing.T) {
	m := NewMemory(nil)
	v := []byte("abc")
	_ = m.Set(context.Background(), "k", v, 0)
	v[0] = 'z'
	got, _ := m.Get(context.Background(), "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller slice: %q", got)
	}
}

func TestRedisBackend(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	exerciseBackend(t, NewRedis(client), srv.FastForward)
}

func TestNoopBackend(t *testing.T) {
	ctx := context.Background()
	var b Noop
	_ = b.Set(ctx, "k", []byte("v"), time.Minute)
	if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("noop must always miss, got %v", err)
	}
}
