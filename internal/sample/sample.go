// Package sample picks the subset of report entries to re-verify.
package sample

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// rateEpsilon absorbs float error so 0.07*100 counts as 7, not 8.
const rateEpsilon = 1e-9

// Size is the number of items Sample returns for n inputs at rate: the ceiling
// of rate*n, and at least one when n > 0.
func Size(n int, rate float64) int {
	if n <= 0 {
		return 0
	}
	k := int(math.Ceil(rate*float64(n) - rateEpsilon))
	return min(max(k, 1), n)
}

// Sample selects Size(len(items), rate) items uniformly without replacement.
// The input slice is not modified. A non-zero seed makes the selection
// reproducible; zero draws from a fresh random source.
func Sample[T any](items []T, rate float64, seed uint64) ([]T, error) {
	if math.IsNaN(rate) || rate <= 0 || rate > 1 {
		return nil, fmt.Errorf("sample rate %v must be in (0, 1]", rate)
	}
	k := Size(len(items), rate)
	if k == 0 {
		return []T{}, nil
	}

	rng := newRand(seed)
	pool := append([]T(nil), items...)
	// Partial Fisher-Yates: the first k slots end up a uniform sample.
	for i := range k {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k:k], nil
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
