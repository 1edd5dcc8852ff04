package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"gamewire/message"
)

var ErrPoolClosed = errors.New("transport: pool closed")

// Dialer opens a transport to addr.
type Dialer func(ctx context.Context, addr string) (*ClientTransport, error)

// TCPDialer returns a Dialer that connects over TCP and wraps the connection
// with the given catalog and options.
func TCPDialer(catalog *message.Catalog, opts ...Option) Dialer {
	return func(ctx context.Context, addr string) (*ClientTransport, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		t, err := NewClientTransport(conn, catalog, opts...)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return t, nil
	}
}

// Pool keeps up to size multiplexed transports to one address. Transports
// are shared, not borrowed: Get hands them out round-robin and callers never
// return them. Slots are dialed lazily and redialed once their transport
// closes.
type Pool struct {
	addr string
	dial Dialer
	next atomic.Uint32

	mu     sync.Mutex
	slots  []*ClientTransport
	closed bool
}

func NewPool(addr string, size int, dial Dialer) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		addr:  addr,
		dial:  dial,
		slots: make([]*ClientTransport, size),
	}
}

// Get returns a live transport for the next slot.
func (p *Pool) Get(ctx context.Context) (*ClientTransport, error) {
	i := int((p.next.Add(1) - 1) % uint32(len(p.slots)))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if t := p.slots[i]; t != nil && !t.Closed() {
		return t, nil
	}
	t, err := p.dial(ctx, p.addr)
	if err != nil {
		return nil, err
	}
	p.slots[i] = t
	return t, nil
}

// Len reports how many slots hold a live transport.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.slots {
		if t != nil && !t.Closed() {
			n++
		}
	}
	return n
}

func (p *Pool) Addr() string {
	return p.addr
}

// Close closes every transport. Later Gets fail with ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var errs []error
	for i, t := range p.slots {
		if t != nil {
			if err := t.Close(); err != nil {
				errs = append(errs, err)
			}
			p.slots[i] = nil
		}
	}
	return errors.Join(errs...)
}
