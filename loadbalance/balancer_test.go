package loadbalance

import (
	"errors"
	"testing"

	"github.com/akariss21/lab-1-distributed-computing/registry"
)

func instances(addrs ...string) []registry.ServiceInstance {
	out := make([]registry.ServiceInstance, len(addrs))
	for i, addr := range addrs {
		out[i] = registry.ServiceInstance{Addr: addr, Weight: 1}
	}
	return out
}

func TestRoundRobinCycles(t *testing.T) {
	b := &RoundRobinBalancer{}
	insts := instances("a:1", "b:1", "c:1")

	seen := map[string]int{}
	for i := 0; i < 6; i++ {
		inst, err := b.Pick("ignored", insts)
		if err != nil {
			t.Fatalf("Pick failed: %v", err)
		}
		seen[inst.Addr]++
	}
	for _, addr := range []string{"a:1", "b:1", "c:1"} {
		if seen[addr] != 2 {
			t.Fatalf("uneven distribution: %v", seen)
		}
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	if _, err := b.Pick("x", nil); !errors.Is(err, ErrNoInstances) {
		t.Fatalf("expect ErrNoInstances, got %v", err)
	}
}

func TestWeightedRandomHonorsWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	insts := []registry.ServiceInstance{
		{Addr: "heavy:1", Weight: 100},
		{Addr: "light:1", Weight: 1},
	}

	heavy := 0
	for i := 0; i < 500; i++ {
		inst, err := b.Pick("ignored", insts)
		if err != nil {
			t.Fatalf("Pick failed: %v", err)
		}
		if inst.Addr == "heavy:1" {
			heavy++
		}
	}
	// ~99% expected; anything above 80% comfortably proves the weighting
	if heavy < 400 {
		t.Fatalf("heavy instance picked only %d/500 times", heavy)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	// Unweighted instances must still be pickable
	if _, err := b.Pick("x", instances("a:1", "b:1")); err != nil {
		t.Fatalf("Pick failed on zero weights: %v", err)
	}
}

func TestConsistentHashAffinity(t *testing.T) {
	b := NewConsistentHashBalancer()
	insts := instances("a:1", "b:1", "c:1")

	first, err := b.Pick("request-id-42", insts)
	if err != nil {
		t.Fatalf("Pick failed: %v", err)
	}
	// The same key keeps landing on the same instance
	for i := 0; i < 20; i++ {
		inst, err := b.Pick("request-id-42", insts)
		if err != nil {
			t.Fatalf("Pick failed: %v", err)
		}
		if inst.Addr != first.Addr {
			t.Fatalf("affinity broken: got %s then %s", first.Addr, inst.Addr)
		}
	}
}

func TestConsistentHashSurvivesInstanceChange(t *testing.T) {
	b := NewConsistentHashBalancer()

	inst, err := b.Pick("key", instances("a:1", "b:1", "c:1"))
	if err != nil {
		t.Fatalf("Pick failed: %v", err)
	}

	// Remove the picked instance; the ring must rebuild and still answer
	var remaining []registry.ServiceInstance
	for _, i := range instances("a:1", "b:1", "c:1") {
		if i.Addr != inst.Addr {
			remaining = append(remaining, i)
		}
	}
	again, err := b.Pick("key", remaining)
	if err != nil {
		t.Fatalf("Pick after removal failed: %v", err)
	}
	if again.Addr == inst.Addr {
		t.Fatal("picked a removed instance")
	}
}
