package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"favsync/pkg/logger"
	"favsync/pkg/ratelimit"
)

// Doer sends one HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// Middleware decorates a Doer.
type Middleware func(next Doer) Doer

// Chain wraps d so that the first middleware is the outermost.
func Chain(d Doer, mws ...Middleware) Doer {
	for i := len(mws) - 1; i >= 0; i-- {
		d = mws[i](d)
	}
	return d
}

// Session holds the bearer token shared by the token and re-auth middlewares.
type Session struct {
	mu    sync.RWMutex
	token string
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// WithToken attaches the current session token as a bearer credential.
func WithToken(s *Session) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			if token := s.Token(); token != "" {
				req = req.Clone(req.Context())
				req.Header.Set("Authorization", "Bearer "+token)
			}
			return next.Do(req)
		})
	}
}

// LoginFunc establishes a fresh session.
type LoginFunc func(ctx context.Context) error

// WithReauth retries a request once after logging in again when the server
// answers 401. A failed login is returned as the request error.
func WithReauth(login LoginFunc, log logger.Logger) Middleware {
	var mu sync.Mutex
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.Do(req)
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}

			retry, err := rewind(req)
			if err != nil {
				return resp, nil
			}
			drain(resp)

			log.WarnWithFields("session rejected, logging in again", map[string]interface{}{
				"url": req.URL.String(),
			})
			mu.Lock()
			err = login(req.Context())
			mu.Unlock()
			if err != nil {
				return nil, err
			}
			return next.Do(retry)
		})
	}
}

// WithRateLimit waits for the limiter before each request.
func WithRateLimit(l ratelimit.Limiter, log logger.Logger) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			if err := l.Wait(req.Context()); err != nil {
				return nil, err
			}
			if waited := time.Since(start); waited > 100*time.Millisecond {
				logger.LogRateLimit(log, req.URL.Path, waited)
			}
			return next.Do(req)
		})
	}
}

// WithLogging records each request at debug level.
func WithLogging(log logger.Logger) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.Do(req)
			if err != nil {
				log.WithError(err).DebugWithFields("HTTP request failed", map[string]interface{}{
					"method":   req.Method,
					"url":      req.URL.String(),
					"duration": time.Since(start),
				})
				return nil, err
			}
			logger.LogRequest(log, req.Method, req.URL.String(), resp.StatusCode, time.Since(start))
			return resp, nil
		})
	}
}

// WithHeaders sets fixed headers on every request.
func WithHeaders(headers map[string]string) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			req = req.Clone(req.Context())
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			return next.Do(req)
		})
	}
}

// rewind returns a copy of req whose body can be sent again.
func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body for %s cannot be replayed", req.URL)
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
