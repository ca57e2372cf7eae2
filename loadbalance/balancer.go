// Package loadbalance picks which registered editor a new session connects to.
//
// Three strategies are implemented:
//   - RoundRobin:      spread sessions evenly over equal editors
//   - WeightedRandom:  editors on hosts of different capacity
//   - ConsistentHash:  the same affinity key (e.g. a workspace path) always
//     lands on the same editor
package loadbalance

import (
	"github.com/juju/errors"

	"nvim-rpc/registry"
)

// ErrNoEndpoints is returned by every strategy when the list is empty.
const ErrNoEndpoints = errors.ConstError("no endpoints available")

// Balancer is the interface for load balancing strategies.
type Balancer interface {
	// Pick selects one endpoint from the available list. It must be
	// goroutine-safe.
	Pick(endpoints []registry.Endpoint) (registry.Endpoint, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the strategy called name. key is only used by ConsistentHash.
func New(name, key string) (Balancer, error) {
	switch name {
	case "", "RoundRobin", "round-robin":
		return &RoundRobinBalancer{}, nil
	case "WeightedRandom", "weighted-random":
		return &WeightedRandomBalancer{}, nil
	case "ConsistentHash", "consistent-hash":
		return NewConsistentHashBalancer(key), nil
	}
	return nil, errors.NotValidf("balancer %q", name)
}
