// Package transport implements the client side of a gamewire connection:
// many concurrent calls multiplexed over one TCP connection, heartbeats,
// and server pushes.
//
// Each request gets a sequence number; a single recvLoop goroutine reads
// every frame and routes responses to the caller waiting on that number.
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop:  ←── response(seq=2) → pending[2] ← goroutine-2 wakes up
//	           ←── push(seq=0)     → OnPush callback
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"gamewire/codec"
	"gamewire/message"
	"gamewire/protocol"
	"gamewire/wire"
)

var ErrClosed = errors.New("transport: connection closed")

// RemoteError is a handler failure reported by the server in an error
// frame.
type RemoteError struct {
	Opcode  message.Opcode
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server error on %s: %s", e.Opcode, e.Message)
}

// Reply is delivered on the channel returned by Send. Body is a pointer to
// the decoded response message.
type Reply struct {
	Header *protocol.Header
	Body   any
	Err    error
}

// PushHandler receives server pushes. It runs on the receive goroutine, so
// it must not block.
type PushHandler func(op message.Opcode, msg any)

type options struct {
	codec     codec.CodecType
	wire      *wire.Registry
	heartbeat time.Duration
	maxBody   uint32
	onPush    PushHandler
	logger    *zap.Logger
}

type Option func(*options)

func WithCodec(t codec.CodecType) Option {
	return func(o *options) { o.codec = t }
}

// WithWireRegistry sets the registry backing the binary codec.
func WithWireRegistry(reg *wire.Registry) Option {
	return func(o *options) { o.wire = reg }
}

// WithHeartbeat sets the keepalive interval; zero disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

func WithMaxBodySize(n uint32) Option {
	return func(o *options) { o.maxBody = n }
}

func WithPushHandler(h PushHandler) Option {
	return func(o *options) { o.onPush = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ClientTransport manages a single multiplexed connection.
type ClientTransport struct {
	conn    net.Conn
	catalog *message.Catalog
	codec   codec.Codec
	codecs  *codec.Set
	opts    options

	seq     uint32
	pending sync.Map // uint32 -> chan *Reply
	sending sync.Mutex
	closed  bool // guarded by sending

	done      chan struct{}
	closeOnce sync.Once
}

// NewClientTransport wraps conn and starts the receive loop and, unless
// disabled, the heartbeat loop.
func NewClientTransport(conn net.Conn, catalog *message.Catalog, opts ...Option) (*ClientTransport, error) {
	o := options{
		codec:     codec.CodecTypeBinary,
		heartbeat: 30 * time.Second,
		maxBody:   protocol.DefaultMaxBodySize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.wire == nil {
		o.wire = wire.Default
	}
	codecs := codec.NewSet(o.wire)
	cdc, err := codecs.Get(o.codec)
	if err != nil {
		return nil, err
	}

	t := &ClientTransport{
		conn:    conn,
		catalog: catalog,
		codec:   cdc,
		codecs:  codecs,
		opts:    o,
		done:    make(chan struct{}),
	}
	go t.recvLoop()
	if o.heartbeat > 0 {
		go t.heartbeatLoop(o.heartbeat)
	}
	return t, nil
}

// Send encodes msg and writes it as a request frame. The returned channel
// receives exactly one Reply.
func (t *ClientTransport) Send(msg any) (uint32, <-chan *Reply, error) {
	op, err := t.catalog.OpcodeOf(msg)
	if err != nil {
		return 0, nil, err
	}
	body, err := t.codec.Encode(msg)
	if err != nil {
		return 0, nil, err
	}

	t.sending.Lock()
	defer t.sending.Unlock()
	if t.closed {
		return 0, nil, ErrClosed
	}

	t.seq++
	seq := t.seq
	header := protocol.Header{
		CodecType: byte(t.codec.Type()),
		MsgType:   protocol.MsgTypeRequest,
		Opcode:    uint16(op),
		Seq:       seq,
	}

	// Register before writing so a fast response cannot beat us.
	ch := make(chan *Reply, 1)
	t.pending.Store(seq, ch)
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		return 0, nil, err
	}
	return seq, ch, nil
}

// Call sends msg and waits for its response or for ctx to end.
func (t *ClientTransport) Call(ctx context.Context, msg any) (any, error) {
	seq, ch, err := t.Send(msg)
	if err != nil {
		return nil, err
	}
	select {
	case reply := <-ch:
		if reply.Err != nil {
			return nil, reply.Err
		}
		return reply.Body, nil
	case <-ctx.Done():
		t.pending.Delete(seq)
		return nil, ctx.Err()
	}
}

func (t *ClientTransport) recvLoop() {
	for {
		h, body, err := protocol.DecodeLimit(t.conn, t.opts.maxBody)
		if err != nil {
			select {
			case <-t.done:
				err = ErrClosed
			default:
			}
			t.fail(err)
			return
		}

		switch h.MsgType {
		case protocol.MsgTypeHeartbeat:
		case protocol.MsgTypePush:
			v, err := t.decode(h, body)
			if err != nil {
				t.opts.logger.Warn("dropping undecodable push", zap.Uint16("opcode", h.Opcode), zap.Error(err))
				continue
			}
			if t.opts.onPush != nil {
				t.opts.onPush(message.Opcode(h.Opcode), v)
			}
		case protocol.MsgTypeResponse:
			v, err := t.decode(h, body)
			t.deliver(h, &Reply{Header: h, Body: v, Err: err})
		case protocol.MsgTypeError:
			t.deliver(h, &Reply{Header: h, Err: t.remoteError(h, body)})
		default:
			t.opts.logger.Warn("unexpected frame from server", zap.Stringer("type", h.MsgType))
		}
	}
}

func (t *ClientTransport) decode(h *protocol.Header, body []byte) (any, error) {
	cdc, err := t.codecs.Get(codec.CodecType(h.CodecType))
	if err != nil {
		return nil, err
	}
	v, err := t.catalog.New(message.Opcode(h.Opcode))
	if err != nil {
		return nil, err
	}
	if err := cdc.Decode(body, v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", t.catalog.Name(message.Opcode(h.Opcode)), err)
	}
	return v, nil
}

func (t *ClientTransport) remoteError(h *protocol.Header, body []byte) error {
	var ack message.ErrorAck
	cdc, err := t.codecs.Get(codec.CodecType(h.CodecType))
	if err == nil {
		err = cdc.Decode(body, &ack)
	}
	if err != nil {
		return fmt.Errorf("undecodable error frame: %w", err)
	}
	return &RemoteError{Opcode: message.Opcode(ack.Opcode), Message: ack.Message}
}

func (t *ClientTransport) deliver(h *protocol.Header, r *Reply) {
	if ch, ok := t.pending.LoadAndDelete(h.Seq); ok {
		ch.(chan *Reply) <- r
	}
}

// fail marks the transport closed and releases every waiting caller.
func (t *ClientTransport) fail(err error) {
	t.sending.Lock()
	t.closed = true
	t.sending.Unlock()

	t.pending.Range(func(key, value any) bool {
		if _, ok := t.pending.LoadAndDelete(key); ok {
			value.(chan *Reply) <- &Reply{Err: err}
		}
		return true
	})
	t.closeOnce.Do(func() {
		close(t.done)
		t.conn.Close()
	})
}

// Close shuts the connection. Pending calls fail with ErrClosed.
func (t *ClientTransport) Close() error {
	t.sending.Lock()
	t.closed = true
	t.sending.Unlock()

	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

// Closed reports whether the transport can no longer send.
func (t *ClientTransport) Closed() bool {
	t.sending.Lock()
	defer t.sending.Unlock()
	return t.closed
}

func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		t.sending.Lock()
		if t.closed {
			t.sending.Unlock()
			return
		}
		err := protocol.Encode(t.conn, &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}, nil)
		t.sending.Unlock()
		if err != nil {
			return
		}
	}
}
