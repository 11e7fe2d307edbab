package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"qazna.org/authcore/internal/obs"
)

type brokenBackend struct{}

var errDown = errors.New("backend down")

func (brokenBackend) Get(context.Context, string) ([]byte, error)              { return nil, errDown }
func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error { return errDown }
func (brokenBackend) Delete(context.Context, string) error                     { return errDown }

type record struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func TestCachePrefixesKeys(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	c := New(NewRedis(client), "cache:")
	c.Set(context.Background(), "users:1", []byte("x"), time.Minute)
	if !srv.Exists("cache:users:1") {
		t.Fatalf("expected prefixed key, have %v", srv.Keys())
	}
}

func TestCacheJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemory(nil), "cache:")

	c.SetJSON(ctx, "users:1", record{ID: "1", Email: "a@example.com"}, time.Minute)
	var got record
	if !c.GetJSON(ctx, "users:1", &got) || got.Email != "a@example.com" {
		t.Fatalf("unexpected cached record %+v", got)
	}
	c.Delete(ctx, "users:1")
	if c.GetJSON(ctx, "users:1", &got) {
		t.Fatalf("expected miss after delete")
	}
}

func TestCacheTreatsCorruptEntriesAsMiss(t *testing.T) {
	ctx := context.Background()
	metrics := obs.NewMetrics()
	c := New(NewMemory(nil), "", WithMetrics(metrics))
	c.Set(ctx, "users:1", []byte("{not json"), time.Minute)

	var got record
	if c.GetJSON(ctx, "users:1", &got) {
		t.Fatalf("corrupt entry reported as hit")
	}
	if n, _ := testutil.GatherAndCount(metrics.Registry(), "cache_operations_total"); n == 0 {
		t.Fatalf("expected cache operations to be counted")
	}
}

func TestCacheSwallowsBackendFailures(t *testing.T) {
	ctx := context.Background()
	metrics := obs.NewMetrics()
	c := New(brokenBackend{}, "cache:", WithMetrics(metrics))

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("failed backend reported a hit")
	}
	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Delete(ctx, "k")

	if n, err := testutil.GatherAndCount(metrics.Registry(), "backend_failures_total"); err != nil || n != 1 {
		t.Fatalf("expected backend failure series, got %d (%v)", n, err)
	}
}

func TestNilBackendIsNoop(t *testing.T) {
	c := New(nil, "")
	c.Set(context.Background(), "k", []byte("v"), time.Minute)
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Fatalf("nil backend must behave as noop")
	}
}
