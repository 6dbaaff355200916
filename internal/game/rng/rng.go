// Package rng provides the randomness abstraction for the Roadband combat
// simulation. Production encounters draw from crypto/rand; batch simulation
// and tests use a seeded source so identical inputs replay identically.
package rng

// Source is the randomness provider for all combat rolls.
//
// Implementations MUST be safe for concurrent use unless documented otherwise.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int

	// Float64 returns a uniformly distributed value in [0, 1).
	Float64() float64
}

// Chance reports whether a probability roll against p succeeds.
// p <= 0 never succeeds; p >= 1 always succeeds.
func Chance(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Float64() < p
}
