// Package middleware wraps message handlers with cross-cutting behavior.
// The same HandlerFunc shape is used on the server, around dispatch to game
// handlers, and on the client, around a round trip.
package middleware

import (
	"context"

	"gamewire/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) *message.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Error strings produced by the middleware in this package. Handlers and
// retry policies compare against them.
const (
	ErrTimeout   = "request timed out"
	ErrRateLimit = "rate limit exceeded"
)

// Chain composes middlewares so that the first one listed runs outermost:
// Chain(A, B, C)(h) is A(B(C(h))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
