package sweep

import (
	"math/rand/v2"
	"time"
)

// DefaultSeedUpperBound is the exclusive upper bound of drawn climate seeds.
const DefaultSeedUpperBound int64 = 10000000

// NewRand returns the generator used to draw seeds for one sweep.
// A zero seed selects a time-based seed.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// DrawSeeds draws one value in [0, upper) per repeat index, in repeat order.
// Every tuple of repeat i uses seeds[i].
func DrawSeeds(rng *rand.Rand, executions int, upper int64) []int64 {
	if executions <= 0 {
		return nil
	}
	if upper <= 0 {
		upper = DefaultSeedUpperBound
	}
	seeds := make([]int64, executions)
	for i := range seeds {
		seeds[i] = rng.Int64N(upper)
	}
	return seeds
}
