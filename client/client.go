// Package client calls game servers found through a registry.
//
// Call pipeline:
//
//	Call(service, msg) → Middleware Chain → invoke
//	  → instances (watched) → Balancer.Pick → per-address Pool → ClientTransport.Call
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"gamewire/codec"
	"gamewire/loadbalance"
	"gamewire/message"
	"gamewire/middleware"
	"gamewire/registry"
	"gamewire/transport"
	"gamewire/wire"
)

var ErrClientClosed = errors.New("client: closed")

type options struct {
	catalog     *message.Catalog
	wire        *wire.Registry
	codec       *codec.CodecType // nil: use what the instance advertises
	balancer    loadbalance.Balancer
	poolSize    int
	heartbeat   time.Duration
	onPush      transport.PushHandler
	middlewares []middleware.Middleware
	logger      *zap.Logger
}

type Option func(*options)

func WithCatalog(c *message.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

func WithWireRegistry(reg *wire.Registry) Option {
	return func(o *options) { o.wire = reg }
}

// WithCodec forces a body codec instead of the one each instance
// advertises.
func WithCodec(t codec.CodecType) Option {
	return func(o *options) { o.codec = &t }
}

func WithBalancer(b loadbalance.Balancer) Option {
	return func(o *options) { o.balancer = b }
}

// WithPoolSize sets how many multiplexed connections are kept per address.
func WithPoolSize(n int) Option {
	return func(o *options) { o.poolSize = n }
}

func WithHeartbeat(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

func WithPushHandler(h transport.PushHandler) Option {
	return func(o *options) { o.onPush = h }
}

// WithMiddleware wraps every call, outermost first.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

type Client struct {
	registry registry.Registry
	opts     options
	handler  middleware.HandlerFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	instances map[string][]registry.ServiceInstance // service -> latest watched list
	pools     map[string]*transport.Pool            // addr -> pool
	closed    bool
}

func NewClient(reg registry.Registry, opts ...Option) *Client {
	o := options{
		poolSize:  2,
		heartbeat: 30 * time.Second,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.catalog == nil {
		o.catalog = message.GameCatalog()
	}
	if o.wire == nil {
		o.wire = wire.Default
	}
	if o.balancer == nil {
		o.balancer = &loadbalance.RoundRobinBalancer{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		registry:  reg,
		opts:      o,
		ctx:       ctx,
		cancel:    cancel,
		instances: make(map[string][]registry.ServiceInstance),
		pools:     make(map[string]*transport.Pool),
	}
	c.handler = middleware.Chain(o.middlewares...)(c.invoke)
	return c
}

type serviceKey struct{}

// callState carries the typed error of the last attempt out of the
// middleware chain, which only passes error strings.
type callState struct {
	service string
	err     error
}

// Call sends msg to an instance of service and returns the decoded
// response. A handler failure on the server comes back as a
// *transport.RemoteError.
func (c *Client) Call(ctx context.Context, service string, msg any) (any, error) {
	op, err := c.opts.catalog.OpcodeOf(msg)
	if err != nil {
		return nil, err
	}
	state := &callState{service: service}
	req := &message.Request{
		Opcode: op,
		Name:   c.opts.catalog.Name(op),
		Body:   msg,
	}

	resp := c.handler(context.WithValue(ctx, serviceKey{}, state), req)
	if resp.Failed() {
		if state.err != nil && (resp == nil || state.err.Error() == resp.Error) {
			return nil, state.err
		}
		if resp == nil {
			return nil, errors.New("client: no response")
		}
		return nil, errors.New(resp.Error)
	}
	return resp.Body, nil
}

// invoke is the innermost handler: discovery, balancing, and the call on
// a pooled transport.
func (c *Client) invoke(ctx context.Context, req *message.Request) *message.Response {
	state := ctx.Value(serviceKey{}).(*callState)
	fail := func(err error) *message.Response {
		state.err = err
		return message.ErrorResponse(err.Error())
	}

	instances, err := c.lookup(ctx, state.service)
	if err != nil {
		return fail(err)
	}
	inst, err := c.opts.balancer.Pick(ctx, instances)
	if err != nil {
		return fail(err)
	}
	pool, err := c.pool(inst)
	if err != nil {
		return fail(err)
	}
	t, err := pool.Get(ctx)
	if err != nil {
		return fail(err)
	}

	body, err := t.Call(ctx, req.Body)
	if err != nil {
		return fail(err)
	}
	state.err = nil
	op, err := c.opts.catalog.OpcodeOf(body)
	if err != nil {
		return fail(err)
	}
	return &message.Response{Opcode: op, Body: body}
}

// lookup returns the watched instance list for service, starting the
// watch on first use.
func (c *Client) lookup(ctx context.Context, service string) ([]registry.ServiceInstance, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	instances, ok := c.instances[service]
	c.mu.Unlock()
	if ok {
		return instances, nil
	}

	ch, err := c.registry.Watch(c.ctx, service)
	if err != nil {
		return nil, err
	}
	var initial []registry.ServiceInstance
	select {
	case initial = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	if current, raced := c.instances[service]; raced {
		// Another call started a watch first; let ours lapse with the client.
		c.mu.Unlock()
		go func() {
			for range ch {
			}
		}()
		return current, nil
	}
	c.instances[service] = initial
	c.mu.Unlock()

	go c.follow(service, ch)
	return initial, nil
}

func (c *Client) follow(service string, ch <-chan []registry.ServiceInstance) {
	for instances := range ch {
		c.mu.Lock()
		c.instances[service] = instances
		c.prune()
		c.mu.Unlock()
		c.opts.logger.Debug("service instances updated",
			zap.String("service", service), zap.Int("instances", len(instances)))
	}
}

// prune closes pools whose address no longer backs any watched service.
// c.mu must be held.
func (c *Client) prune() {
	live := make(map[string]bool)
	for _, list := range c.instances {
		for _, inst := range list {
			live[inst.Addr] = true
		}
	}
	for addr, p := range c.pools {
		if !live[addr] {
			p.Close()
			delete(c.pools, addr)
		}
	}
}

func (c *Client) pool(inst *registry.ServiceInstance) (*transport.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if p, ok := c.pools[inst.Addr]; ok {
		return p, nil
	}

	ct := codec.CodecTypeBinary
	if c.opts.codec != nil {
		ct = *c.opts.codec
	} else if parsed, err := codec.ParseCodecType(inst.Codec); err == nil {
		ct = parsed
	}
	dial := transport.TCPDialer(c.opts.catalog,
		transport.WithCodec(ct),
		transport.WithWireRegistry(c.opts.wire),
		transport.WithHeartbeat(c.opts.heartbeat),
		transport.WithPushHandler(c.opts.onPush),
		transport.WithLogger(c.opts.logger.With(zap.String("addr", inst.Addr))))
	p := transport.NewPool(inst.Addr, c.opts.poolSize, dial)
	c.pools[inst.Addr] = p
	return p, nil
}

// Close stops every watch and closes every connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	var errs []error
	for addr, p := range c.pools {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.pools, addr)
	}
	return errors.Join(errs...)
}
