package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"sync"

	"github.com/akariss21/lab-1-distributed-computing/registry"
)

// ConsistentHashBalancer maps keys to instances using a hash ring, so the
// same key reaches the same instance until the instance set changes.
//
// Keyed by request id, this gives retry affinity: when a client reconnects
// mid-call and retransmits, the duplicate lands on the instance that already
// holds the cached response, keeping at-most-once effective across servers.
//
// Virtual nodes: each real instance is mapped to N points on the ring.
// Without them, a few instances may cluster together and split load
// unevenly; 100 virtual nodes per instance gives statistical uniformity.
type ConsistentHashBalancer struct {
	replicas int

	mu    sync.Mutex
	addrs string                              // Fingerprint of the instance set the ring was built from
	ring  []uint32                            // Sorted hash points on the ring
	nodes map[uint32]registry.ServiceInstance // Hash point → instance
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per
// instance. The ring is rebuilt lazily whenever Pick sees a changed
// instance set.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]registry.ServiceInstance),
	}
}

// Pick finds the instance responsible for the key: hash the key, then
// binary-search for the first ring point >= that hash, wrapping to the
// start of the ring when the hash is past the last point.
func (b *ConsistentHashBalancer) Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.rebuildIfChanged(instances)

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	inst := b.nodes[b.ring[idx]]
	return &inst, nil
}

// rebuildIfChanged re-hashes the ring when the discovered instance set
// differs from the one the current ring was built from. Caller holds b.mu.
func (b *ConsistentHashBalancer) rebuildIfChanged(instances []registry.ServiceInstance) {
	sorted := make([]string, len(instances))
	for i, inst := range instances {
		sorted[i] = inst.Addr
	}
	sort.Strings(sorted)
	fingerprint := fmt.Sprint(sorted)
	if fingerprint == b.addrs {
		return
	}

	b.addrs = fingerprint
	b.ring = b.ring[:0]
	clear(b.nodes)
	for _, inst := range instances {
		for i := 0; i < b.replicas; i++ {
			point := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", inst.Addr, i)))
			b.ring = append(b.ring, point)
			b.nodes[point] = inst
		}
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
