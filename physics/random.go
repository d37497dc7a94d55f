package physics

import (
	"hash/fnv"
	"math/rand"
	"time"
)

// SeedFromLabel derives a stable seed from a root seed and a label.
func SeedFromLabel(root, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(root))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// NewRNG returns a generator seeded from root and label. An empty root seeds
// from the clock.
func NewRNG(root, label string) *rand.Rand {
	if root == "" {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(SeedFromLabel(root, label)))
}

// insideUnitCircle samples a point uniformly from the unit disk.
func insideUnitCircle(rng *rand.Rand) (float64, float64) {
	for {
		x := rng.Float64()*2 - 1
		y := rng.Float64()*2 - 1
		if x*x+y*y <= 1 {
			return x, y
		}
	}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
