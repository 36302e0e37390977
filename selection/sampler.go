package selection

import (
	"math/rand/v2"
	"slices"
)

// Sample draws n distinct elements of pool uniformly without replacement.
// All, or any n not smaller than the pool, returns the whole pool in order.
// The pool is not modified.
func Sample[T any](rng *rand.Rand, pool []T, n int) []T {
	if n == None || len(pool) == 0 {
		return nil
	}
	if n == All || n >= len(pool) {
		return slices.Clone(pool)
	}
	if n < 0 {
		return nil
	}

	// partial Fisher-Yates over a permutation of positions
	perm := make([]int, len(pool))
	for i := range perm {
		perm[i] = i
	}
	for i := range n {
		j := i + rng.IntN(len(perm)-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	picked := perm[:n]
	slices.Sort(picked)

	ret := make([]T, n)
	for i, idx := range picked {
		ret[i] = pool[idx]
	}
	return ret
}

// Bernoulli reports true with probability prob
func Bernoulli(rng *rand.Rand, prob float64) bool {
	if prob <= 0 {
		return false
	}
	if prob >= 1 {
		return true
	}
	return rng.Float64() < prob
}
