// Package rng provides goroutine-safe random sources with deterministic seeding
// for tests and replays.
package rng

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

// Source is a mutex-guarded *rand.Rand shared by effects and timers.
type Source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// SeedValue derives a stable non-zero seed from a root seed and a label.
func SeedValue(rootSeed, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// NewDeterministic returns a source seeded from rootSeed and label.
func NewDeterministic(rootSeed, label string) *Source {
	return &Source{rng: rand.New(rand.NewSource(SeedValue(rootSeed, label)))}
}

// New returns a source seeded from the wall clock.
func New() *Source {
	return &Source{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Intn returns a uniform value in [0, n). It returns 0 when n <= 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	if s == nil {
		return rand.Intn(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// Float64 returns a uniform value in [0, 1).
func (s *Source) Float64() float64 {
	if s == nil {
		return rand.Float64()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Range returns a uniform value in [min, max).
func (s *Source) Range(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + s.Float64()*(max-min)
}
