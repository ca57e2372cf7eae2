package loadbalance

import (
	"sync/atomic"

	"nvim-rpc/registry"
)

// RoundRobinBalancer hands out endpoints in order. The atomic counter keeps it
// lock-free.
type RoundRobinBalancer struct {
	counter atomic.Uint64 // Incremented on each Pick
}

func (b *RoundRobinBalancer) Pick(endpoints []registry.Endpoint) (registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}
	index := (b.counter.Add(1) - 1) % uint64(len(endpoints))
	return endpoints[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
