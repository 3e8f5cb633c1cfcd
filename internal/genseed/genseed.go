// Package genseed generates deterministic []uint64 word slabs from a
// single uint64 seed. It exists only to drive the property-based
// differential test in the root package (spec.md §8's "generate random
// &[u64] slabs, then compare Interpreter::step vs JIT::step") and the
// aivmdump CLI's -seed flag; it is not the evolutionary search/mutation
// component spec.md §1 places out of scope (no crossover, no fitness,
// no population).
package genseed

// Gen is a splitmix64-based generator (the same well-known
// constant-multiplier mixing function used to seed most PCG/xoshiro
// implementations), chosen over math/rand here because a fixed,
// dependency-free, single-file generator makes property-test failures
// trivially reproducible from the printed seed alone.
type Gen struct {
	state uint64
}

// New returns a Gen seeded with seed. New(0) and New(math.MaxUint64) are
// both valid seeds; splitmix64 has no bad seed values.
func New(seed uint64) *Gen {
	return &Gen{state: seed}
}

// Uint64 returns the next pseudo-random value in the sequence.
func (g *Gen) Uint64() uint64 {
	g.state += 0x9E3779B97F4A7C15
	z := g.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// Words returns a freshly generated slab of n words.
func (g *Gen) Words(n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = g.Uint64()
	}
	return out
}

// Slab is a convenience wrapper: it seeds a fresh Gen and returns n
// words in one call, for callers that don't need to keep generating
// afterward (e.g. a single property-test iteration).
func Slab(seed uint64, n int) []uint64 {
	return New(seed).Words(n)
}
