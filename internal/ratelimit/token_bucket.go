// Package ratelimit implements a Redis-backed token bucket shared by every
// API replica.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "cutout:ratelimit"

// takeScript refills the bucket for the elapsed time and takes ARGV[4]
// tokens when enough are available. It replies with
// {allowed, remaining, retry_after_ms, full_after_ms}.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local per_ms = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local last = tonumber(state[2]) or now

tokens = math.min(capacity, tokens + math.max(0, now - last) * per_ms)

local allowed = 0
local wait = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  wait = math.ceil((cost - tokens) / per_ms)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[5]))

return {allowed, math.floor(tokens), wait, math.ceil((capacity - tokens) / per_ms)}
`)

type Config struct {
	// Capacity is the burst size and the number of tokens regained per Window.
	Capacity  int
	Window    time.Duration
	KeyPrefix string
}

type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	// RetryAfter is zero when Allowed.
	RetryAfter time.Duration
	// ResetAfter is how long until the bucket is full again.
	ResetAfter time.Duration
}

type RedisTokenBucket struct {
	client    redis.UniversalClient
	capacity  int64
	perMS     float64
	ttl       time.Duration
	keyPrefix string
	now       func() time.Time
}

func NewRedisTokenBucket(client redis.UniversalClient, cfg Config) (*RedisTokenBucket, error) {
	switch {
	case client == nil:
		return nil, errors.New("redis client is required")
	case cfg.Capacity <= 0:
		return nil, fmt.Errorf("capacity must be positive, got %d", cfg.Capacity)
	case cfg.Window <= 0:
		return nil, fmt.Errorf("window must be positive, got %s", cfg.Window)
	}

	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return &RedisTokenBucket{
		client:    client,
		capacity:  int64(cfg.Capacity),
		perMS:     float64(cfg.Capacity) / float64(max(1, cfg.Window.Milliseconds())),
		ttl:       2 * cfg.Window,
		keyPrefix: prefix,
		now:       time.Now,
	}, nil
}

func (b *RedisTokenBucket) Allow(ctx context.Context, subject string) (Decision, error) {
	return b.AllowN(ctx, subject, 1)
}

// AllowN takes cost tokens at once. A cost above the bucket capacity can
// never succeed and is rejected without touching Redis.
func (b *RedisTokenBucket) AllowN(ctx context.Context, subject string, cost int) (Decision, error) {
	cost = max(1, cost)
	if int64(cost) > b.capacity {
		return Decision{}, fmt.Errorf("cost %d exceeds bucket capacity %d", cost, b.capacity)
	}

	reply, err := takeScript.Run(ctx, b.client, []string{b.key(subject)},
		b.capacity, b.perMS, b.now().UnixMilli(), cost, b.ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run token bucket script: %w", err)
	}

	d, err := parseDecision(reply)
	if err != nil {
		return Decision{}, err
	}
	d.Limit = b.capacity
	return d, nil
}

func (b *RedisTokenBucket) key(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return b.keyPrefix + ":" + subject
}

func parseDecision(reply []any) (Decision, error) {
	if len(reply) != 4 {
		return Decision{}, fmt.Errorf("token bucket reply has %d values, want 4", len(reply))
	}

	var nums [4]int64
	for i, v := range reply {
		n, err := replyInt(v)
		if err != nil {
			return Decision{}, fmt.Errorf("token bucket reply[%d]: %w", i, err)
		}
		nums[i] = n
	}

	return Decision{
		Allowed:    nums[0] == 1,
		Remaining:  nums[1],
		RetryAfter: time.Duration(nums[2]) * time.Millisecond,
		ResetAfter: time.Duration(nums[3]) * time.Millisecond,
	}, nil
}

// replyInt accepts the integer shapes Redis and its test doubles produce.
func replyInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
