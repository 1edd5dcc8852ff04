package loadbalance

import (
	"context"
	"math/rand"

	"gamewire/registry"
)

// WeightedRandomBalancer picks an instance with probability proportional
// to its Weight. Weights below 1 count as 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(ctx context.Context, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	total := 0
	for i := range instances {
		total += weight(&instances[i])
	}

	r := rand.Intn(total)
	for i := range instances {
		r -= weight(&instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func weight(inst *registry.ServiceInstance) int {
	if inst.Weight < 1 {
		return 1
	}
	return inst.Weight
}
