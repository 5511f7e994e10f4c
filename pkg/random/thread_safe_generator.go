package random

import (
	"math/rand/v2"
)

// ThreadSafeGenerator is a Random Number Generator (RNG) that may be
// used from within multiple goroutines without additional locking. It
// is used to apply jitter to retry backoff, so that parts that failed
// at the same time are not retried in lockstep. It is not suitable for
// cryptographic purposes.
type ThreadSafeGenerator interface {
	// Generates a number in range [0.0, 1.0).
	Float64() float64
}

type fastThreadSafeGenerator struct{}

func (fastThreadSafeGenerator) Float64() float64 {
	return rand.Float64()
}

// FastThreadSafeGenerator is an instance of ThreadSafeGenerator that is
// randomly seeded on startup.
var FastThreadSafeGenerator ThreadSafeGenerator = fastThreadSafeGenerator{}
