// Package registry is the service directory game servers announce
// themselves in and clients discover them through.
package registry

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("registry: no instances")

// ServiceInstance is one reachable server for a service.
type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // relative share for weighted balancing
	Version string `json:"version,omitempty"`
	Codec   string `json:"codec,omitempty"` // preferred body codec, see codec.ParseCodecType
}

// Registry is implemented by EtcdRegistry and MemoryRegistry.
type Registry interface {
	// Register announces inst under service. The entry expires after ttl
	// unless the registry keeps it alive.
	Register(ctx context.Context, service string, inst ServiceInstance, ttl time.Duration) error
	Deregister(ctx context.Context, service, addr string) error
	Discover(ctx context.Context, service string) ([]ServiceInstance, error)
	// Watch emits the full instance list once immediately and again after
	// every change, until ctx ends.
	Watch(ctx context.Context, service string) (<-chan []ServiceInstance, error)
	Close() error
}
