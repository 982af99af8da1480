// Package ratelimit guards per-account order submission with a
// Redis-backed token bucket.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBucket implements a token bucket rate limiter backed by Redis.
type TokenBucket struct {
	client     redis.Cmdable
	bucketSize int64
	refillRate float64 // tokens per second
}

// Result is the outcome of a single Allow check.
type Result struct {
	Allowed    bool
	Remaining  int64
	Limit      int64
	RetryAfter time.Duration
}

// tokenBucketScript performs the read-refill-consume sequence atomically
// so concurrent gateway handlers never race on the same account's bucket.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local bucket_size = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = tonumber(redis.call('HGET', key, 'tokens'))
local last_refill = tonumber(redis.call('HGET', key, 'last_refill'))

if tokens == nil then
    tokens = bucket_size
    last_refill = now
end

local elapsed = now - last_refill
local tokens_to_add = elapsed * refill_rate
tokens = math.min(bucket_size, tokens + tokens_to_add)

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

local retry_after = 0
if allowed == 0 then
    retry_after = math.ceil((1 - tokens) / refill_rate)
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill', now)
redis.call('EXPIRE', key, 3600)

return {allowed, math.floor(tokens), retry_after}
`)

// NewTokenBucket creates a rate limiter. client may be a standalone or
// cluster Redis client.
func NewTokenBucket(client redis.Cmdable, bucketSize int64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		client:     client,
		bucketSize: bucketSize,
		refillRate: refillRate,
	}
}

// Allow checks whether a request for accountID should proceed.
func (tb *TokenBucket) Allow(ctx context.Context, accountID string) (*Result, error) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)

	result, err := tokenBucketScript.Run(ctx, tb.client, []string{"lobcore:ratelimit:" + accountID},
		tb.bucketSize,
		tb.refillRate,
		now,
	).Int64Slice()
	if err != nil {
		return nil, err
	}

	return &Result{
		Allowed:    result[0] == 1,
		Remaining:  result[1],
		Limit:      tb.bucketSize,
		RetryAfter: time.Duration(result[2]) * time.Second,
	}, nil
}

// IsHealthy reports whether the backing Redis connection is reachable.
func (tb *TokenBucket) IsHealthy(ctx context.Context) bool {
	return tb.client.Ping(ctx).Err() == nil
}
