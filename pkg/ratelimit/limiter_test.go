package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurst(t *testing.T) {
	tb := NewTokenBucket(60, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "token %d should be available", i+1)
	}
	assert.False(t, tb.Allow(), "bucket should be empty after the burst")

	tb.Reset()
	assert.True(t, tb.Allow(), "reset should refill the bucket")
}

func TestTokenBucketWaitRespectsContext(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Error(t, tb.Wait(ctx))
}

func TestTokenBucketRefills(t *testing.T) {
	// 1200/min is one token every 50ms
	tb := NewTokenBucket(1200, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, tb.Wait(ctx))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow())
	}
	assert.NoError(t, l.Wait(context.Background()))
}
