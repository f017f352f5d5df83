package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed right now, consuming a token if so
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset refills the limiter
	Reset()
}

// TokenBucket implements Limiter on top of rate.Limiter
type TokenBucket struct {
	limit rate.Limit
	burst int
	l     *rate.Limiter
}

// NewTokenBucket allows requestsPerMinute on average with bursts of up to burst.
func NewTokenBucket(requestsPerMinute, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	return &TokenBucket{limit: limit, burst: burst, l: rate.NewLimiter(limit, burst)}
}

func (tb *TokenBucket) Allow() bool {
	return tb.l.Allow()
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.l.Wait(ctx)
}

// Reset restores a full bucket
func (tb *TokenBucket) Reset() {
	tb.l = rate.NewLimiter(tb.limit, tb.burst)
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}
