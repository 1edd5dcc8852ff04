package middleware

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"gamewire/message"
)

// RetryMiddleware retries client calls that failed on a timeout or a
// refused connection, backing off exponentially from baseDelay. Any other
// error is returned at once.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			resp := next(ctx, req)
			for i := 0; i < maxRetries && retryable(resp); i++ {
				delay := baseDelay * time.Duration(1<<i)
				logger.Info("retrying call",
					zap.String("message", req.Name),
					zap.Int("attempt", i+1),
					zap.Duration("delay", delay),
					zap.String("error", resp.Error))

				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return resp
				}
				resp = next(ctx, req)
			}
			return resp
		}
	}
}

func retryable(resp *message.Response) bool {
	if !resp.Failed() {
		return false
	}
	return strings.Contains(resp.Error, "timeout") ||
		strings.Contains(resp.Error, "timed out") ||
		strings.Contains(resp.Error, "connection refused")
}
