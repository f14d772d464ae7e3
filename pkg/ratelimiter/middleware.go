package ratelimiter

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// KeyFunc picks the bucket for a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// Limiter is satisfied by *Bucket.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// DeniedFunc writes the response for a refused request.
type DeniedFunc func(w http.ResponseWriter, r *http.Request, res *Result)

// ErrorFunc is told about store failures. The request is let through.
type ErrorFunc func(r *http.Request, err error)

// Middleware sets X-RateLimit-* headers and hands refused requests to
// denied. Store errors fail open.
func Middleware(l Limiter, key KeyFunc, denied DeniedFunc, onError ErrorFunc) func(http.Handler) http.Handler {
	if denied == nil {
		denied = func(w http.ResponseWriter, _ *http.Request, _ *Result) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.Allow(r.Context(), k)
			if err != nil {
				if onError != nil {
					onError(r, err)
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				if wait := res.RetryAfter(time.Now()); wait > 0 {
					h.Set("Retry-After", strconv.Itoa(int(wait.Round(time.Second).Seconds())))
				}
				denied(w, r, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
