// Package server implements the game server: typed opcode handlers, a
// middleware chain, per-session ordered dispatch, server pushes, and
// graceful shutdown.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (reader goroutine decodes frames)
//	  → session queue → worker goroutine (one per session, in order)
//	    → Middleware Chain → dispatch (typed handler) → Codec.Encode → write response
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gamewire/codec"
	"gamewire/message"
	"gamewire/middleware"
	"gamewire/protocol"
	"gamewire/registry"
	"gamewire/wire"
)

var ErrServerClosed = errors.New("server: closed")

type options struct {
	service      string
	catalog      *message.Catalog
	wire         *wire.Registry
	codec        codec.CodecType
	maxBody      uint32
	queueSize    int
	idleTimeout  time.Duration
	writeTimeout time.Duration
	weight       int
	ttl          time.Duration
	logger       *zap.Logger
}

type Option func(*options)

// WithServiceName sets the name the server registers under. Default "game".
func WithServiceName(name string) Option {
	return func(o *options) { o.service = name }
}

// WithCatalog sets the opcode catalog. Default message.GameCatalog().
func WithCatalog(c *message.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithWireRegistry sets the registry behind the binary codec. Serve seals
// it, so it should not be shared with code that compiles new types later.
func WithWireRegistry(reg *wire.Registry) Option {
	return func(o *options) { o.wire = reg }
}

// WithCodec sets the codec for pushes sent before the client's first
// request and advertised in the registry.
func WithCodec(t codec.CodecType) Option {
	return func(o *options) { o.codec = t }
}

func WithMaxBodySize(n uint32) Option {
	return func(o *options) { o.maxBody = n }
}

// WithQueueSize bounds the frames a session may have waiting for its
// worker. A full queue stops reading from that connection.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithIdleTimeout drops connections that send nothing, not even a
// heartbeat, for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idleTimeout = d }
}

// WithWriteTimeout bounds each frame write. A client that stops reading
// for longer is dropped. Zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

func WithWeight(w int) Option {
	return func(o *options) { o.weight = w }
}

func WithRegistryTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Server dispatches frames to handlers registered with Handle.
type Server struct {
	opts     options
	catalog  *message.Catalog
	wire     *wire.Registry
	codecs   *codec.Set
	logger   *zap.Logger
	handlers map[message.Opcode]*handler

	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(middleware(...(dispatch)))
	onClose     []func(*Session)

	mu            sync.Mutex
	listener      net.Listener
	registry      registry.Registry
	advertiseAddr string

	sessions    sync.Map // uint64 -> *Session
	nextSession atomic.Uint64
	conns       sync.WaitGroup
	started     atomic.Bool
	shutdown    atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(opts ...Option) *Server {
	o := options{
		service:      "game",
		codec:        codec.CodecTypeBinary,
		maxBody:      protocol.DefaultMaxBodySize,
		queueSize:    64,
		idleTimeout:  90 * time.Second,
		writeTimeout: 10 * time.Second,
		weight:       10,
		ttl:          10 * time.Second,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.catalog == nil {
		o.catalog = message.GameCatalog()
	}
	if o.wire == nil {
		o.wire = wire.NewRegistry(wire.WithLogger(o.logger))
	}
	if o.queueSize < 1 {
		o.queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:     o,
		catalog:  o.catalog,
		wire:     o.wire,
		codecs:   codec.NewSet(o.wire),
		logger:   o.logger,
		handlers: make(map[message.Opcode]*handler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Use registers a middleware. Middlewares run in the order they are added.
// It must be called before Serve.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// OnClose registers fn to run after a session's connection is gone.
func (svr *Server) OnClose(fn func(*Session)) {
	svr.onClose = append(svr.onClose, fn)
}

// Catalog returns the server's opcode catalog.
func (svr *Server) Catalog() *message.Catalog { return svr.catalog }

// WireRegistry returns the registry behind the server's binary codec.
func (svr *Server) WireRegistry() *wire.Registry { return svr.wire }

// Addr returns the listen address once Serve has started, else nil.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// Serve listens on address and calls ServeListener.
func (svr *Server) Serve(network, address, advertiseAddr string, reg registry.Registry) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(ln, advertiseAddr, reg)
}

// ServeListener compiles a codec for every catalog message, seals the wire
// registry, optionally registers advertiseAddr with reg, and runs the accept
// loop until Shutdown. Codec compilation errors are returned before any
// connection is accepted.
func (svr *Server) ServeListener(ln net.Listener, advertiseAddr string, reg registry.Registry) error {
	if !svr.started.CompareAndSwap(false, true) {
		ln.Close()
		return errors.New("server: already serving")
	}
	if err := svr.wire.Preload(svr.catalog.Descriptors()...); err != nil {
		ln.Close()
		return fmt.Errorf("server: compiling message codecs: %w", err)
	}
	svr.wire.Seal()

	// Build the chain once, not per request.
	svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatch)

	svr.mu.Lock()
	svr.listener = ln
	svr.registry = reg
	svr.advertiseAddr = advertiseAddr
	stopped := svr.shutdown.Load()
	svr.mu.Unlock()
	if stopped {
		ln.Close()
		return nil
	}

	if reg != nil {
		ctx, cancel := context.WithTimeout(svr.ctx, 5*time.Second)
		err := reg.Register(ctx, svr.opts.service, registry.ServiceInstance{
			Addr:   advertiseAddr,
			Weight: svr.opts.weight,
			Codec:  svr.opts.codec.String(),
		}, svr.opts.ttl)
		cancel()
		if err != nil {
			ln.Close()
			return fmt.Errorf("server: registering %s: %w", advertiseAddr, err)
		}
		if svr.shutdown.Load() {
			// Shutdown ran while we were registering and may have
			// deregistered before our entry existed.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			reg.Deregister(ctx, svr.opts.service, advertiseAddr)
			cancel()
			return nil
		}
	}

	svr.logger.Info("server listening",
		zap.Stringer("addr", ln.Addr()),
		zap.String("service", svr.opts.service),
		zap.Int("codecs", svr.wire.Len()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			// Shutdown closes the listener; that Accept error is expected.
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		// Shutdown sets the flag before taking mu, so once it is past mu and
		// waiting on conns no further Add happens.
		svr.mu.Lock()
		if svr.shutdown.Load() {
			svr.mu.Unlock()
			conn.Close()
			return nil
		}
		svr.conns.Add(1)
		svr.mu.Unlock()
		go svr.handleConn(conn)
	}
}

// frame is a decoded request waiting for its session's worker.
type frame struct {
	header *protocol.Header
	codec  codec.Codec
	body   any
}

// handleConn runs the reader for one connection. Frames are decoded here
// and handed to a single worker, so one session's requests are handled in
// the order they arrived while different sessions run in parallel.
func (svr *Server) handleConn(conn net.Conn) {
	defer svr.conns.Done()

	sess := newSession(svr, svr.nextSession.Add(1), conn)
	svr.sessions.Store(sess.id, sess)
	log := svr.logger.With(zap.Uint64("session", sess.id), zap.Stringer("remote", conn.RemoteAddr()))
	log.Debug("session opened")

	queue := make(chan *frame, svr.opts.queueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for f := range queue {
			svr.handleRequest(sess, f)
		}
	}()

	var reason error
	for !svr.shutdown.Load() {
		if svr.opts.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(svr.opts.idleTimeout))
		}
		header, body, err := protocol.DecodeLimit(conn, svr.opts.maxBody)
		if err != nil {
			reason = err
			break
		}

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeRequest:
		default:
			log.Debug("ignoring frame", zap.Stringer("type", header.MsgType))
			continue
		}

		f, err := svr.decodeRequest(header, body)
		if errors.Is(err, message.ErrUnknownOpcode) {
			sess.writeError(header, codec.CodecType(header.CodecType), err.Error())
			continue
		}
		if err != nil {
			// A body that does not match its opcode means the peer is broken
			// or hostile; stop reading from it.
			log.Warn("dropping connection on undecodable frame",
				zap.Stringer("opcode", message.Opcode(header.Opcode)), zap.Error(err))
			reason = err
			break
		}
		sess.codec.Store(int32(f.codec.Type()))
		queue <- f
	}

	close(queue)
	<-done
	sess.close()
	svr.sessions.Delete(sess.id)
	for _, fn := range svr.onClose {
		fn(sess)
	}
	log.Debug("session closed", zap.NamedError("reason", reason))
}

func (svr *Server) decodeRequest(h *protocol.Header, body []byte) (*frame, error) {
	cdc, err := svr.codecs.Get(codec.CodecType(h.CodecType))
	if err != nil {
		return nil, err
	}
	op := message.Opcode(h.Opcode)
	if _, ok := svr.handlers[op]; !ok {
		return nil, fmt.Errorf("%w: %s", message.ErrUnknownOpcode, op)
	}
	v, err := svr.catalog.New(op)
	if err != nil {
		return nil, err
	}
	if err := cdc.Decode(body, v); err != nil {
		return nil, err
	}
	return &frame{header: h, codec: cdc, body: v}, nil
}

// handleRequest runs one request through the middleware chain and writes
// the response on the session.
func (svr *Server) handleRequest(sess *Session, f *frame) {
	op := message.Opcode(f.header.Opcode)
	req := &message.Request{
		Opcode:    op,
		Name:      svr.catalog.Name(op),
		Seq:       f.header.Seq,
		SessionID: sess.id,
		Remote:    sess.Remote(),
		Body:      f.body,
	}
	// A middleware may answer before the handler returns (a timeout).
	// Waiting for the handler here keeps the next frame from overlapping it.
	track := &inflight{}
	defer track.settle()
	ctx := withInflight(withSession(svr.ctx, sess), track)
	resp := svr.handler(ctx, req)

	if resp.Failed() {
		msg := "no response"
		if resp != nil {
			msg = resp.Error
		}
		sess.writeError(f.header, f.codec.Type(), msg)
		return
	}

	body, err := f.codec.Encode(resp.Body)
	if err != nil {
		svr.logger.Error("encoding response failed",
			zap.Stringer("opcode", resp.Opcode), zap.Uint64("session", sess.id), zap.Error(err))
		sess.writeError(f.header, f.codec.Type(), "internal error")
		return
	}
	// Keep the request's seq so the client can match the response.
	reply := protocol.Header{
		CodecType: byte(f.codec.Type()),
		MsgType:   protocol.MsgTypeResponse,
		Opcode:    uint16(resp.Opcode),
		Seq:       f.header.Seq,
	}
	if err := sess.write(&reply, body); err != nil {
		svr.logger.Debug("writing response failed", zap.Uint64("session", sess.id), zap.Error(err))
	}
}

// dispatch is the innermost handler: it finds the typed handler for the
// opcode and turns its result into a Response.
func (svr *Server) dispatch(ctx context.Context, req *message.Request) *message.Response {
	h, ok := svr.handlers[req.Opcode]
	if !ok {
		return message.ErrorResponse(fmt.Sprintf("no handler for opcode %s", req.Opcode))
	}
	sess, _ := SessionFromContext(ctx)
	if track, ok := ctx.Value(inflightKey{}).(*inflight); ok {
		if !track.begin() {
			return message.ErrorResponse("request abandoned")
		}
		defer track.end()
	}

	body, err := h.call(ctx, sess, req.Body)
	if err != nil {
		return message.ErrorResponse(err.Error())
	}
	if body == nil {
		return message.ErrorResponse("handler returned no response")
	}
	op, err := svr.catalog.OpcodeOf(body)
	if err != nil {
		return message.ErrorResponse(err.Error())
	}
	return &message.Response{Opcode: op, Body: body}
}

// Sessions returns the number of open sessions.
func (svr *Server) Sessions() int {
	n := 0
	svr.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Session returns the open session with the given id.
func (svr *Server) Session(id uint64) (*Session, bool) {
	v, ok := svr.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Broadcast pushes msg to every open session and returns how many sends
// succeeded.
func (svr *Server) Broadcast(msg any) int {
	sent := 0
	svr.sessions.Range(func(_, v any) bool {
		if err := v.(*Session).Send(msg); err == nil {
			sent++
		}
		return true
	})
	return sent
}

// Shutdown performs graceful shutdown:
//  1. Set the shutdown flag so the Accept error is recognized as intentional
//  2. Deregister from the registry so clients stop routing here
//  3. Close the listener and stop reading from every session
//  4. Wait for queued requests to be answered, up to timeout
func (svr *Server) Shutdown(timeout time.Duration) error {
	// The flag is set before the listener is read under mu, so a Serve
	// racing with us either sees the flag or has its listener closed here.
	svr.shutdown.Store(true)
	svr.mu.Lock()
	ln, reg, addr := svr.listener, svr.registry, svr.advertiseAddr
	svr.mu.Unlock()

	var errs []error
	if reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := reg.Deregister(ctx, svr.opts.service, addr); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}

	if ln != nil {
		ln.Close()
	}
	svr.sessions.Range(func(_, v any) bool {
		v.(*Session).stopReading()
		return true
	})

	done := make(chan struct{})
	go func() {
		svr.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		errs = append(errs, fmt.Errorf("timeout waiting for ongoing requests to finish"))
		svr.sessions.Range(func(_, v any) bool {
			v.(*Session).close()
			return true
		})
	}
	svr.cancel()
	svr.logger.Info("server stopped")
	return errors.Join(errs...)
}
