// Package fault injects artificial failures into the server's response path.
//
// The injector exists to exercise the client's timeout/retry handling: a
// fixed delay models a slow server, and probabilistic response dropping
// models network loss. It is a pluggable policy so tests can substitute
// deterministic fault sequences for the random one.
package fault

import (
	"math/rand"
	"sync"
	"time"
)

// Injector decides, per response, whether to delay processing and whether to
// suppress the response entirely.
type Injector interface {
	// Delay returns the artificial processing delay applied before dispatch.
	Delay() time.Duration
	// DropResponse reports whether the next response should be silently
	// discarded instead of written. Each decision is independent: a
	// retransmitted duplicate gets its own trial.
	DropResponse() bool
}

// None performs no fault injection.
type None struct{}

func (None) Delay() time.Duration { return 0 }
func (None) DropResponse() bool   { return false }

// Random applies a fixed delay and drops each response with probability
// dropRate, via independent Bernoulli trials.
type Random struct {
	delay    time.Duration
	dropRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom builds a Random injector. dropRate is clamped to [0,1].
func NewRandom(delay time.Duration, dropRate float64) *Random {
	if dropRate < 0 {
		dropRate = 0
	}
	if dropRate > 1 {
		dropRate = 1
	}
	return &Random{
		delay:    delay,
		dropRate: dropRate,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *Random) Delay() time.Duration { return r.delay }

func (r *Random) DropResponse() bool {
	if r.dropRate == 0 {
		return false
	}
	if r.dropRate == 1 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < r.dropRate
}

// Script replays a fixed drop sequence, then stops dropping. Used in tests
// that need an exact fault pattern, e.g. "drop the first two responses".
type Script struct {
	delay time.Duration

	mu    sync.Mutex
	drops []bool
	next  int
}

func NewScript(delay time.Duration, drops ...bool) *Script {
	return &Script{delay: delay, drops: drops}
}

func (s *Script) Delay() time.Duration { return s.delay }

func (s *Script) DropResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.drops) {
		return false
	}
	drop := s.drops[s.next]
	s.next++
	return drop
}
