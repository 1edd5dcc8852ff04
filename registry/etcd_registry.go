package registry

// EtcdRegistry stores one key per instance:
//
//	Key:   {prefix}{service}/{addr}
//	Value: JSON-encoded ServiceInstance
//
// Each key is attached to a TTL lease that a background KeepAlive renews.
// If the server crashes the lease expires and the entry disappears, so
// clients never see ghost instances.

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const DefaultPrefix = "/gamewire/"

type EtcdOption func(*etcdOptions)

type etcdOptions struct {
	prefix      string
	dialTimeout time.Duration
	logger      *zap.Logger
}

// WithPrefix sets the key prefix; it should end in "/".
func WithPrefix(p string) EtcdOption {
	return func(o *etcdOptions) { o.prefix = p }
}

func WithDialTimeout(d time.Duration) EtcdOption {
	return func(o *etcdOptions) { o.dialTimeout = d }
}

func WithLogger(l *zap.Logger) EtcdOption {
	return func(o *etcdOptions) { o.logger = l }
}

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client
	opts   etcdOptions

	mu     sync.Mutex
	leases map[string]lease // key -> lease kept alive by this process
}

type lease struct {
	id     clientv3.LeaseID
	cancel context.CancelFunc
}

func NewEtcdRegistry(endpoints []string, opts ...EtcdOption) (*EtcdRegistry, error) {
	o := etcdOptions{
		prefix:      DefaultPrefix,
		dialTimeout: 5 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: o.dialTimeout,
		Logger:      o.logger.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, opts: o, leases: make(map[string]lease)}, nil
}

func (r *EtcdRegistry) servicePrefix(service string) string {
	return r.opts.prefix + service + "/"
}

func (r *EtcdRegistry) key(service, addr string) string {
	return r.servicePrefix(service) + addr
}

// Register grants a lease of ttl, writes the instance under it and keeps
// the lease alive until Deregister or Close. Re-registering an address
// replaces its previous lease.
func (r *EtcdRegistry) Register(ctx context.Context, service string, inst ServiceInstance, ttl time.Duration) error {
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	grant, err := r.client.Grant(ctx, seconds)
	if err != nil {
		return fmt.Errorf("registry: grant lease: %w", err)
	}

	val, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	key := r.key(service, inst.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(grant.ID)); err != nil {
		return fmt.Errorf("registry: put %s: %w", key, err)
	}

	// KeepAlive must outlive ctx, which usually belongs to a startup call.
	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kaCtx, grant.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("registry: keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
		r.opts.logger.Debug("lease keepalive stopped", zap.String("key", key))
	}()

	r.mu.Lock()
	old, replaced := r.leases[key]
	r.leases[key] = lease{id: grant.ID, cancel: cancel}
	r.mu.Unlock()
	if replaced {
		old.cancel()
	}

	r.opts.logger.Info("service registered",
		zap.String("service", service),
		zap.String("addr", inst.Addr),
		zap.Int64("ttl_seconds", seconds))
	return nil
}

// Deregister deletes the instance and revokes its lease. It is called on
// graceful shutdown before the listener closes.
func (r *EtcdRegistry) Deregister(ctx context.Context, service, addr string) error {
	key := r.key(service, addr)

	r.mu.Lock()
	l, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if _, err := r.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("registry: delete %s: %w", key, err)
	}
	if ok {
		l.cancel()
		if _, err := r.client.Revoke(ctx, l.id); err != nil {
			r.opts.logger.Warn("lease revoke failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// Discover lists every instance under the service prefix. Malformed values
// are skipped.
func (r *EtcdRegistry) Discover(ctx context.Context, service string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, r.servicePrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst ServiceInstance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			r.opts.logger.Warn("skipping malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Watch re-lists the service after every change under its prefix
// (registrations, deregistrations and lease expirations alike).
func (r *EtcdRegistry) Watch(ctx context.Context, service string) (<-chan []ServiceInstance, error) {
	initial, err := r.Discover(ctx, service)
	if err != nil {
		return nil, err
	}

	ch := make(chan []ServiceInstance, 1)
	ch <- initial
	watchChan := r.client.Watch(ctx, r.servicePrefix(service), clientv3.WithPrefix())

	go func() {
		defer close(ch)
		for wresp := range watchChan {
			if err := wresp.Err(); err != nil {
				r.opts.logger.Warn("watch error", zap.String("service", service), zap.Error(err))
				continue
			}
			instances, err := r.Discover(ctx, service)
			if err != nil {
				r.opts.logger.Warn("rediscover failed", zap.String("service", service), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close stops every keepalive and closes the etcd client. Leases left
// behind expire on their own.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for key, l := range r.leases {
		l.cancel()
		delete(r.leases, key)
	}
	r.mu.Unlock()
	return r.client.Close()
}
