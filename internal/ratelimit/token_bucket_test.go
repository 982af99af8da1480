package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const redisAddr = "localhost:6379"

// newTestClient returns a Redis client for the suite, skipping the test
// when no Redis instance is reachable (these tests exercise the real
// Lua script, not a mock).
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: redisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not reachable at %s: %v", redisAddr, err)
	}
	return client
}

func clearBucket(t *testing.T, client *redis.Client, accountID string) {
	t.Helper()
	err := client.Del(context.Background(), "lobcore:ratelimit:"+accountID).Err()
	require.NoError(t, err)
}

func TestTokenBucket_AllowsWithinBurst(t *testing.T) {
	client := newTestClient(t)
	defer client.Close()

	account := "TESTACCT1"
	clearBucket(t, client, account)

	tb := NewTokenBucket(client, 5, 1.0)
	for i := 0; i < 5; i++ {
		result, err := tb.Allow(context.Background(), account)
		require.NoError(t, err)
		require.True(t, result.Allowed, "request %d should be allowed within burst", i+1)
	}
}

func TestTokenBucket_RejectsBeyondBurst(t *testing.T) {
	client := newTestClient(t)
	defer client.Close()

	account := "TESTACCT2"
	clearBucket(t, client, account)

	tb := NewTokenBucket(client, 3, 0.1)
	for i := 0; i < 3; i++ {
		result, err := tb.Allow(context.Background(), account)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := tb.Allow(context.Background(), account)
	require.NoError(t, err)
	require.False(t, result.Allowed, "request beyond the burst should be rejected")
	require.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	client := newTestClient(t)
	defer client.Close()

	account := "TESTACCT3"
	clearBucket(t, client, account)

	tb := NewTokenBucket(client, 1, 2.0) // refills in 500ms
	first, err := tb.Allow(context.Background(), account)
	require.NoError(t, err)
	require.True(t, first.Allowed)

	immediate, err := tb.Allow(context.Background(), account)
	require.NoError(t, err)
	require.False(t, immediate.Allowed)

	time.Sleep(600 * time.Millisecond)

	refilled, err := tb.Allow(context.Background(), account)
	require.NoError(t, err)
	require.True(t, refilled.Allowed, "bucket should have refilled after waiting")
}

func TestTokenBucket_AccountsAreIndependent(t *testing.T) {
	client := newTestClient(t)
	defer client.Close()

	clearBucket(t, client, "ALICE")
	clearBucket(t, client, "BOB")

	tb := NewTokenBucket(client, 1, 0.01)

	aliceResult, err := tb.Allow(context.Background(), "ALICE")
	require.NoError(t, err)
	require.True(t, aliceResult.Allowed)

	// Exhaust Alice's bucket; Bob's is untouched.
	_, err = tb.Allow(context.Background(), "ALICE")
	require.NoError(t, err)

	bobResult, err := tb.Allow(context.Background(), "BOB")
	require.NoError(t, err)
	require.True(t, bobResult.Allowed, "Bob's bucket should be independent of Alice's")
}

func TestTokenBucket_IsHealthy(t *testing.T) {
	client := newTestClient(t)
	defer client.Close()

	tb := NewTokenBucket(client, 10, 1.0)
	require.True(t, tb.IsHealthy(context.Background()))
}

func TestTokenBucket_IsHealthy_UnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1", // nothing listens here
		DialTimeout: 200 * time.Millisecond,
	})
	defer client.Close()

	tb := NewTokenBucket(client, 10, 1.0)
	require.False(t, tb.IsHealthy(context.Background()))
}
