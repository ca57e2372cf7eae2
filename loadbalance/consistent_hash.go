package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"nvim-rpc/registry"
)

// ConsistentHashBalancer maps an affinity key to an endpoint using a hash
// ring. The same key lands on the same editor until the ring changes, and a
// change only moves the keys owned by the endpoint that came or went.
//
// Each endpoint gets 100 virtual nodes so that a few endpoints still spread
// evenly around the ring.
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
type ConsistentHashBalancer struct {
	key      string
	replicas int

	mu      sync.Mutex
	members string                       // Addresses the ring was built from
	ring    []uint32                     // Sorted hash values on the ring
	nodes   map[uint32]registry.Endpoint // Hash value → endpoint
}

// NewConsistentHashBalancer routes every Pick by key.
func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		key:      key,
		replicas: 100,
		nodes:    make(map[uint32]registry.Endpoint),
	}
}

// Add places an endpoint onto the ring with its virtual nodes, hashed from
// "{addr}#{i}".
func (b *ConsistentHashBalancer) Add(ep registry.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(ep)
	b.sortRing()
}

func (b *ConsistentHashBalancer) add(ep registry.Endpoint) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", ep.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = ep
	}
}

func (b *ConsistentHashBalancer) sortRing() {
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Pick rebuilds the ring when the endpoint set changed, then looks up the
// balancer's key.
func (b *ConsistentHashBalancer) Pick(endpoints []registry.Endpoint) (registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}

	addrs := make([]string, len(endpoints))
	for i, ep := range endpoints {
		addrs[i] = ep.Addr
	}
	sort.Strings(addrs)
	members := strings.Join(addrs, ",")

	b.mu.Lock()
	defer b.mu.Unlock()
	if members != b.members {
		b.ring = b.ring[:0]
		b.nodes = make(map[uint32]registry.Endpoint, len(endpoints)*b.replicas)
		for _, ep := range endpoints {
			b.add(ep)
		}
		b.sortRing()
		b.members = members
	}
	return b.lookup(b.key)
}

// Lookup finds the endpoint responsible for key on the current ring.
func (b *ConsistentHashBalancer) Lookup(key string) (registry.Endpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookup(key)
}

// lookup binary-searches for the first node >= hash(key), wrapping around to
// the first node past the end of the ring.
func (b *ConsistentHashBalancer) lookup(key string) (registry.Endpoint, error) {
	if len(b.ring) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
