package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gamewire/message"
)

// LoggingMiddleware logs every handled message at debug level and every
// failed one at warn level.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.String("message", req.Name),
				zap.Stringer("opcode", req.Opcode),
				zap.Uint32("seq", req.Seq),
				zap.Uint64("session", req.SessionID),
				zap.Duration("duration", time.Since(start)),
			}
			if resp.Failed() {
				logger.Warn("message failed", append(fields, zap.String("error", resp.Error))...)
				return resp
			}
			logger.Debug("message handled", fields...)
			return resp
		}
	}
}
