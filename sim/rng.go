package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// RolloutKey identifies a reproducible rollout. Two rollouts with the same key
// against the same simulator build issue identical command streams.
type RolloutKey int64

// NewRolloutKey creates a RolloutKey from a seed value.
func NewRolloutKey(seed int64) RolloutKey {
	return RolloutKey(seed)
}

// SubsystemPolicy drives action sampling for the first rollout worker. Uses
// the master seed directly, so a single-worker rollout depends on the seed
// alone.
const SubsystemPolicy = "policy"

// SubsystemWorker returns the subsystem name for rollout worker N (N >= 1).
func SubsystemWorker(id int) string {
	return fmt.Sprintf("worker_%d", id)
}

// PartitionedRNG hands out isolated, deterministically seeded RNGs per
// subsystem so that adding draws in one subsystem never shifts another.
//
// Derivation: SubsystemPolicy uses the master seed; every other subsystem uses
// masterSeed XOR fnv1a64(name).
//
// Not safe for concurrent use.
type PartitionedRNG struct {
	key        RolloutKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a RolloutKey.
func NewPartitionedRNG(key RolloutKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the RNG for the named subsystem, creating it on first
// use. Repeated calls return the same instance. Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	derivedSeed := int64(p.key)
	if name != SubsystemPolicy {
		derivedSeed ^= fnv1a64(name)
	}

	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the RolloutKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() RolloutKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
