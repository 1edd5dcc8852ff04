package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gamewire/codec"
	"gamewire/message"
	"gamewire/protocol"
)

var ErrSessionClosed = errors.New("server: session closed")

var aLongTimeAgo = time.Unix(1, 0)

// Session is one client connection. Send may be called from any goroutine;
// writes on the connection are serialized.
type Session struct {
	id   uint64
	conn net.Conn
	srv  *Server

	codec   atomic.Int32 // codec of the latest request, used for pushes
	writeMu sync.Mutex   // one frame at a time on conn
	values  sync.Map
	closed  atomic.Bool
}

func newSession(srv *Server, id uint64, conn net.Conn) *Session {
	s := &Session{id: id, conn: conn, srv: srv}
	s.codec.Store(int32(srv.opts.codec))
	return s
}

func (s *Session) ID() uint64 { return s.id }

func (s *Session) Remote() net.Addr { return s.conn.RemoteAddr() }

// Set stores a per-session value, such as the account a login bound.
func (s *Session) Set(key string, v any) { s.values.Store(key, v) }

func (s *Session) Get(key string) (any, bool) { return s.values.Load(key) }

// Send pushes msg to the client as an unsolicited frame, encoded with the
// codec the client last used.
func (s *Session) Send(msg any) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	op, err := s.srv.catalog.OpcodeOf(msg)
	if err != nil {
		return err
	}
	cdc, err := s.srv.codecs.Get(codec.CodecType(s.codec.Load()))
	if err != nil {
		return err
	}
	body, err := cdc.Encode(msg)
	if err != nil {
		return err
	}
	return s.write(&protocol.Header{
		CodecType: byte(cdc.Type()),
		MsgType:   protocol.MsgTypePush,
		Opcode:    uint16(op),
	}, body)
}

// Close drops the connection.
func (s *Session) Close() error {
	return s.close()
}

// write sends one frame. A write that fails or misses the write deadline
// may have left a partial frame on the wire, so it closes the session.
func (s *Session) write(h *protocol.Header, body []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if d := s.srv.opts.writeTimeout; d > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(d))
	}
	if err := protocol.Encode(s.conn, h, body); err != nil {
		s.close()
		return err
	}
	return nil
}

// writeError answers req with an error frame carrying an ErrorAck.
func (s *Session) writeError(req *protocol.Header, ct codec.CodecType, msg string) {
	cdc, err := s.srv.codecs.Get(ct)
	if err != nil {
		return
	}
	body, err := cdc.Encode(&message.ErrorAck{Opcode: req.Opcode, Message: msg})
	if err != nil {
		s.srv.logger.Error("encoding error ack failed", zap.Error(err))
		return
	}
	err = s.write(&protocol.Header{
		CodecType: byte(ct),
		MsgType:   protocol.MsgTypeError,
		Opcode:    uint16(message.OpErrorAck),
		Seq:       req.Seq,
	}, body)
	if err != nil {
		s.srv.logger.Debug("writing error frame failed", zap.Uint64("session", s.id), zap.Error(err))
	}
}

// stopReading makes the reader loop end while leaving writes open, so
// queued requests can still be answered.
func (s *Session) stopReading() {
	if cr, ok := s.conn.(interface{ CloseRead() error }); ok {
		if cr.CloseRead() == nil {
			return
		}
	}
	s.conn.SetReadDeadline(aLongTimeAgo)
}

// close does not take writeMu: closing the conn is what unblocks a write
// stuck on a peer that stopped reading.
func (s *Session) close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}

// inflight tracks the handler runs of one request. Once the worker settles
// it, no new run may start.
type inflight struct {
	mu      sync.Mutex
	settled bool
	running sync.WaitGroup
}

func (f *inflight) begin() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settled {
		return false
	}
	f.running.Add(1)
	return true
}

func (f *inflight) end() { f.running.Done() }

// settle waits for handler runs that outlived the middleware chain.
func (f *inflight) settle() {
	f.mu.Lock()
	f.settled = true
	f.mu.Unlock()
	f.running.Wait()
}

type inflightKey struct{}

func withInflight(ctx context.Context, f *inflight) context.Context {
	return context.WithValue(ctx, inflightKey{}, f)
}

type sessionKey struct{}

func withSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session a request arrived on.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}
