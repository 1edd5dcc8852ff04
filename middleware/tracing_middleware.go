package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gamewire/message"
)

const defaultTracerName = "gamewire"

type tracingConfig struct {
	tracer trace.Tracer
	kind   trace.SpanKind
}

type TracingOption func(*tracingConfig)

// WithTracer uses t instead of the global provider's tracer.
func WithTracer(t trace.Tracer) TracingOption {
	return func(c *tracingConfig) {
		c.tracer = t
	}
}

// WithSpanKind sets the span kind; the default is server.
func WithSpanKind(kind trace.SpanKind) TracingOption {
	return func(c *tracingConfig) {
		c.kind = kind
	}
}

// TracingMiddleware opens one span per message named after the message and
// marks it as an error when the handler fails. The span travels in ctx, so
// handlers can add their own attributes through trace.SpanFromContext.
func TracingMiddleware(opts ...TracingOption) Middleware {
	cfg := tracingConfig{kind: trace.SpanKindServer}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(defaultTracerName)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, span := cfg.tracer.Start(ctx, "gamewire."+req.Name,
				trace.WithSpanKind(cfg.kind),
				trace.WithAttributes(
					attribute.Int("gamewire.opcode", int(req.Opcode)),
					attribute.Int64("gamewire.seq", int64(req.Seq)),
					attribute.Int64("gamewire.session_id", int64(req.SessionID)),
				),
			)
			defer span.End()

			resp := next(ctx, req)
			if resp.Failed() {
				span.SetStatus(codes.Error, resp.Error)
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return resp
		}
	}
}
