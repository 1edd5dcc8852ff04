package loadbalance

import (
	"context"
	"hash/crc32"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gamewire/registry"
)

const defaultReplicas = 100

// ConsistentHashBalancer maps an affinity key to an instance on a hash
// ring, so the same player keeps landing on the same server until the
// instance set changes. Each instance owns replicas virtual nodes hashed
// from "{addr}#{i}", which keeps the ring evenly spread.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
//
// The ring is rebuilt lazily when Pick sees a different instance set.
// Calls without a key fall back to round robin.
type ConsistentHashBalancer struct {
	replicas int
	fallback RoundRobinBalancer

	mu      sync.Mutex
	members string   // sorted addrs of the current ring
	ring    []uint32 // sorted virtual node hashes
	nodes   map[uint32]string
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return NewConsistentHashBalancerReplicas(defaultReplicas)
}

func NewConsistentHashBalancerReplicas(replicas int) *ConsistentHashBalancer {
	if replicas < 1 {
		replicas = 1
	}
	return &ConsistentHashBalancer{replicas: replicas, nodes: make(map[uint32]string)}
}

func (b *ConsistentHashBalancer) Pick(ctx context.Context, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	key, ok := KeyFrom(ctx)
	if !ok {
		return b.fallback.Pick(ctx, instances)
	}

	addr := b.lookup(instances, key)
	for i := range instances {
		if instances[i].Addr == addr {
			return &instances[i], nil
		}
	}
	return nil, ErrNoInstances
}

func (b *ConsistentHashBalancer) lookup(instances []registry.ServiceInstance, key string) string {
	addrs := make([]string, len(instances))
	for i := range instances {
		addrs[i] = instances[i].Addr
	}
	sort.Strings(addrs)
	members := strings.Join(addrs, ",")

	b.mu.Lock()
	defer b.mu.Unlock()
	if members != b.members {
		b.rebuild(addrs)
		b.members = members
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]]
}

func (b *ConsistentHashBalancer) rebuild(addrs []string) {
	b.ring = b.ring[:0]
	clear(b.nodes)
	for _, addr := range addrs {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(addr + "#" + strconv.Itoa(i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = addr
		}
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
