package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry keeps instances in process. It serves single-node
// deployments and tests. Entries do not expire.
type MemoryRegistry struct {
	mu       sync.Mutex
	services map[string]map[string]ServiceInstance
	watchers map[string]map[chan []ServiceInstance]struct{}
	closed   bool
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string]map[string]ServiceInstance),
		watchers: make(map[string]map[chan []ServiceInstance]struct{}),
	}
}

func (r *MemoryRegistry) Register(ctx context.Context, service string, inst ServiceInstance, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.services[service]
	if m == nil {
		m = make(map[string]ServiceInstance)
		r.services[service] = m
	}
	m[inst.Addr] = inst
	r.notify(service)
	return nil
}

func (r *MemoryRegistry) Deregister(ctx context.Context, service, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[service][addr]; !ok {
		return nil
	}
	delete(r.services[service], addr)
	r.notify(service)
	return nil
}

func (r *MemoryRegistry) Discover(ctx context.Context, service string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(service), nil
}

func (r *MemoryRegistry) Watch(ctx context.Context, service string) (<-chan []ServiceInstance, error) {
	ch := make(chan []ServiceInstance, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch, nil
	}
	ws := r.watchers[service]
	if ws == nil {
		ws = make(map[chan []ServiceInstance]struct{})
		r.watchers[service] = ws
	}
	ws[ch] = struct{}{}
	ch <- r.snapshot(service)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.watchers[service][ch]; ok {
			delete(r.watchers[service], ch)
			close(ch)
		}
	}()
	return ch, nil
}

// Close ends every watch.
func (r *MemoryRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for service, ws := range r.watchers {
		for ch := range ws {
			close(ch)
		}
		delete(r.watchers, service)
	}
	return nil
}

// snapshot returns the instances of service sorted by address. r.mu must
// be held.
func (r *MemoryRegistry) snapshot(service string) []ServiceInstance {
	out := make([]ServiceInstance, 0, len(r.services[service]))
	for _, inst := range r.services[service] {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// notify replaces any unread update with the latest list, so slow watchers
// only ever see the newest state. r.mu must be held.
func (r *MemoryRegistry) notify(service string) {
	snap := r.snapshot(service)
	for ch := range r.watchers[service] {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
