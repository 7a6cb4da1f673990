// Package dedup caches responses by request id for at-most-once delivery.
//
// When a retransmitted request arrives with a known id, the server replays
// the cached response instead of re-executing the procedure. The cache is
// bounded in both size and age: an unbounded table keyed by random ids grows
// for the life of the process, so entries are evicted LRU-first and expire
// after a TTL comfortably longer than any client's full retry budget.
package dedup

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/akariss21/lab-1-distributed-computing/message"
)

// Cache is the dedup table consulted by the dispatcher in at-most-once mode.
// Implementations must be safe for concurrent use across connections.
type Cache interface {
	Get(requestID string) (*message.Response, bool)
	Put(requestID string, resp *message.Response)
	Len() int
}

const (
	DefaultSize = 4096
	DefaultTTL  = 5 * time.Minute
)

// LRU is the bounded Cache implementation, backed by hashicorp's expirable
// LRU.
type LRU struct {
	entries *lru.LRU[string, *message.Response]
}

// NewLRU builds a cache holding at most size responses, each expiring after
// ttl. Zero values select the defaults.
func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRU{entries: lru.NewLRU[string, *message.Response](size, nil, ttl)}
}

func (c *LRU) Get(requestID string) (*message.Response, bool) {
	return c.entries.Get(requestID)
}

func (c *LRU) Put(requestID string, resp *message.Response) {
	c.entries.Add(requestID, resp)
}

func (c *LRU) Len() int {
	return c.entries.Len()
}
