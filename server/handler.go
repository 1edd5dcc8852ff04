package server

import (
	"context"
	"fmt"
	"reflect"

	"gamewire/message"
	"gamewire/wire"
)

// handler adapts a typed HandlerFunc to the untyped request body.
type handler struct {
	name    string
	reqType reflect.Type
	call    func(ctx context.Context, sess *Session, body any) (any, error)
}

// HandlerFunc handles one request of type T. The returned value is sent
// back as the response and must be a catalog message; a non-nil error is
// sent as an ErrorAck instead.
type HandlerFunc[T any] func(ctx context.Context, sess *Session, req *T) (any, error)

// Handle registers fn for op. The catalog must map op to T, and T's codec
// is compiled immediately so a type the wire format cannot carry fails here
// rather than on the first request. Handle must be called before Serve.
func Handle[T any](svr *Server, op message.Opcode, fn HandlerFunc[T]) error {
	if svr.started.Load() {
		return fmt.Errorf("server: Handle(%s) after Serve", op)
	}
	want := reflect.TypeOf((*T)(nil)).Elem()
	got, ok := svr.catalog.Type(op)
	if !ok {
		return fmt.Errorf("server: %w: %s", message.ErrUnknownOpcode, op)
	}
	if got != want {
		return fmt.Errorf("server: opcode %s carries %s, handler takes %s", op, got, want)
	}
	if _, dup := svr.handlers[op]; dup {
		return fmt.Errorf("server: duplicate handler for %s", op)
	}
	if _, err := svr.wire.Get(wire.DescriptorOf[T]()); err != nil {
		return fmt.Errorf("server: handler for %s: %w", op, err)
	}

	svr.handlers[op] = &handler{
		name:    svr.catalog.Name(op),
		reqType: want,
		call: func(ctx context.Context, sess *Session, body any) (any, error) {
			req, ok := body.(*T)
			if !ok {
				return nil, fmt.Errorf("server: %s handler got %T", op, body)
			}
			return fn(ctx, sess, req)
		},
	}
	return nil
}

// MustHandle is Handle that panics on error, for static setup code.
func MustHandle[T any](svr *Server, op message.Opcode, fn HandlerFunc[T]) {
	if err := Handle(svr, op, fn); err != nil {
		panic(err)
	}
}

// Handlers returns the names of the registered handlers keyed by opcode.
func (svr *Server) Handlers() map[message.Opcode]string {
	out := make(map[message.Opcode]string, len(svr.handlers))
	for op, h := range svr.handlers {
		out[op] = h.name
	}
	return out
}
