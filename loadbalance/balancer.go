// Package loadbalance selects which discovered server instance a call goes
// to.
//
// Three strategies:
//   - RoundRobin:      equal-capacity instances, stateless spread
//   - WeightedRandom:  heterogeneous instances (different CPU/memory)
//   - ConsistentHash:  keyed affinity — the client keys by request id, so
//     reconnecting retries of one logical call land on the same instance
//     and keep hitting its dedup cache
package loadbalance

import (
	"errors"

	"github.com/akariss21/lab-1-distributed-computing/registry"
)

// ErrNoInstances is returned by Pick when discovery yielded nothing.
var ErrNoInstances = errors.New("no instances available")

// Balancer selects one instance from the available list.
// Pick runs on every connection attempt and must be goroutine-safe.
// The key is the request id of the call being placed; strategies without
// affinity ignore it.
type Balancer interface {
	Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
