// Package loadbalance picks the server instance a call goes to.
//
// Three strategies are implemented:
//   - RoundRobin:      stateless services, equal-capacity instances
//   - WeightedRandom:  heterogeneous instances, share follows Weight
//   - ConsistentHash:  stateful services; a player's calls stick to one
//     instance, keyed by WithKey (usually the account ID)
package loadbalance

import (
	"context"
	"errors"
	"fmt"

	"gamewire/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is called before every call and must be goroutine-safe.
type Balancer interface {
	Pick(ctx context.Context, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

type keyCtx struct{}

// WithKey attaches the affinity key ConsistentHash routes by.
func WithKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, keyCtx{}, key)
}

// KeyFrom returns the affinity key set by WithKey, if any.
func KeyFrom(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(keyCtx{}).(string)
	return key, ok
}

// New returns the balancer for a config name.
func New(name string) (Balancer, error) {
	switch name {
	case "round_robin", "":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, fmt.Errorf("loadbalance: unknown balancer %q", name)
}
