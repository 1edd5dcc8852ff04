package middleware

import (
	"context"
	"time"

	"gamewire/message"
)

// TimeOutMiddleware bounds a handler's run time. On expiry the caller gets
// an ErrTimeout response; the handler keeps running with a cancelled ctx and
// its late result is dropped.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.ErrorResponse(ErrTimeout)
			}
		}
	}
}
