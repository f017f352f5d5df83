// Package ratelimit paces outbound requests to the remote service.
//
// TokenBucket wraps golang.org/x/time/rate; Unlimited is used by tests and
// when pacing is disabled.
package ratelimit
