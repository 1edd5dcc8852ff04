package middleware

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"gamewire/message"
)

// RateLimitMiddleware applies one token bucket to every message.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if !limiter.Allow() {
				return message.ErrorResponse(ErrRateLimit)
			}
			return next(ctx, req)
		}
	}
}

// SessionRateLimiter keeps one token bucket per session so a flooding
// client cannot starve the others.
type SessionRateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters sync.Map // session ID -> *rate.Limiter
}

func NewSessionRateLimiter(r float64, burst int) *SessionRateLimiter {
	return &SessionRateLimiter{limit: rate.Limit(r), burst: burst}
}

func (l *SessionRateLimiter) allow(session uint64) bool {
	v, ok := l.limiters.Load(session)
	if !ok {
		v, _ = l.limiters.LoadOrStore(session, rate.NewLimiter(l.limit, l.burst))
	}
	return v.(*rate.Limiter).Allow()
}

// Forget drops the bucket of a closed session.
func (l *SessionRateLimiter) Forget(session uint64) {
	l.limiters.Delete(session)
}

func (l *SessionRateLimiter) Middleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if !l.allow(req.SessionID) {
				return message.ErrorResponse(ErrRateLimit)
			}
			return next(ctx, req)
		}
	}
}
