package testbed

import (
	"hash/fnv"
	"math/rand"
)

// RunKey is the seed a run draws all of its randomness from. Replaying a run
// with the same key and inputs yields the same topology and the same delays.
type RunKey int64

// NewRunKey wraps seed.
func NewRunKey(seed int64) RunKey {
	return RunKey(seed)
}

// Random streams.
const (
	// SubsystemTopology drives graph generation. It is seeded with the key
	// itself so a model's fixed seed is exactly the graph seed.
	SubsystemTopology = "topology"
	// SubsystemDelay drives random delay draws.
	SubsystemDelay = "delay"
)

// PartitionedRNG hands out one independent stream per named subsystem, so
// drawing from one never shifts the values another sees. Not safe for
// concurrent use.
type PartitionedRNG struct {
	key     RunKey
	streams map[string]*rand.Rand
}

// NewPartitionedRNG returns a PartitionedRNG with no streams opened yet.
func NewPartitionedRNG(key RunKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, streams: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the stream for name, opening it on first use.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	stream, ok := p.streams[name]
	if !ok {
		stream = rand.New(rand.NewSource(p.seedFor(name)))
		p.streams[name] = stream
	}
	return stream
}

// Key returns the key the streams derive from.
func (p *PartitionedRNG) Key() RunKey {
	return p.key
}

// seedFor mixes the subsystem name into the key with FNV-1a.
func (p *PartitionedRNG) seedFor(name string) int64 {
	if name == SubsystemTopology {
		return int64(p.key)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(p.key) ^ int64(h.Sum64())
}
