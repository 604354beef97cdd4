package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newUnreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewRedisTokenBucketValidates(t *testing.T) {
	client := newUnreachableClient(t)

	if _, err := NewRedisTokenBucket(nil, Config{Capacity: 10, Window: time.Minute}); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisTokenBucket(client, Config{Window: time.Minute}); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := NewRedisTokenBucket(client, Config{Capacity: 10}); err == nil {
		t.Fatal("expected error for zero window")
	}

	bucket, err := NewRedisTokenBucket(client, Config{Capacity: 10, Window: time.Minute, KeyPrefix: " "})
	if err != nil {
		t.Fatalf("NewRedisTokenBucket returned error: %v", err)
	}
	if got := bucket.key(""); got != DefaultKeyPrefix+":anonymous" {
		t.Fatalf("expected default prefix and anonymous subject, got %q", got)
	}
	if bucket.ttl != 2*time.Minute {
		t.Fatalf("expected ttl of two windows, got %s", bucket.ttl)
	}
}

func TestAllowNRejectsCostAboveCapacity(t *testing.T) {
	bucket, err := NewRedisTokenBucket(newUnreachableClient(t), Config{Capacity: 2, Window: time.Minute, KeyPrefix: "test"})
	if err != nil {
		t.Fatalf("NewRedisTokenBucket returned error: %v", err)
	}
	if _, err := bucket.AllowN(context.Background(), "user", 3); err == nil {
		t.Fatal("expected cost above capacity to fail")
	}
}

func TestParseDecision(t *testing.T) {
	d, err := parseDecision([]any{int64(0), int64(3), "1500", float64(42000)})
	if err != nil {
		t.Fatalf("parseDecision returned error: %v", err)
	}
	want := Decision{Allowed: false, Remaining: 3, RetryAfter: 1500 * time.Millisecond, ResetAfter: 42 * time.Second}
	if d != want {
		t.Fatalf("expected %+v, got %+v", want, d)
	}

	if _, err := parseDecision([]any{int64(1), int64(2)}); err == nil {
		t.Fatal("expected short reply to fail")
	}
	if _, err := parseDecision([]any{int64(1), []byte("2"), int64(0), int64(0)}); err == nil {
		t.Fatal("expected unsupported reply type to fail")
	}
	if _, err := parseDecision([]any{int64(1), "x", int64(0), int64(0)}); err == nil {
		t.Fatal("expected non-numeric string to fail")
	}
}
