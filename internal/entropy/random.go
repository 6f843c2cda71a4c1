// Package entropy provides injectable randomness for the simulation.
// Everything stochastic draws through a Source so offline market drift and
// reconnect jitter are reproducible under a fixed seed.
package entropy

import (
	"math/rand"
	"sync"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Source yields the random draws the engine needs. Implementations are used
// from the single engine goroutine and are not required to be safe for
// concurrent use; wrap with Locked when shared.
type Source interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// Intn returns a uniform value in [0, n).
	Intn(n int) int
}

// Seeded is a deterministic Source backed by math/rand. The same seed always
// produces the same draw sequence.
type Seeded struct {
	rng *rand.Rand
}

// NewSeeded creates a deterministic source from a seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: rand.New(rand.NewSource(seed))}
}

func (s *Seeded) Float64() float64 { return s.rng.Float64() }
func (s *Seeded) Intn(n int) int   { return s.rng.Intn(n) }

// Locked wraps a Source with a mutex for the few places (the sync client's
// reconnect jitter) where draws happen off the engine goroutine.
type Locked struct {
	mu  sync.Mutex
	src Source
}

// NewLocked wraps src so it can be shared across goroutines.
func NewLocked(src Source) *Locked {
	return &Locked{src: src}
}

func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Float64()
}

func (l *Locked) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Intn(n)
}

// Drift produces smooth bounded noise over a time axis, one independent
// channel per consumer. Backed by opensimplex so successive samples are
// continuous rather than white: market indices wander instead of jittering.
type Drift struct {
	noise opensimplex.Noise
}

// NewDrift creates a drift field from a seed.
func NewDrift(seed int64) *Drift {
	return &Drift{noise: opensimplex.New(seed)}
}

// Sample returns a value in [-1, 1] for the given channel at time t.
// Channels are spaced out on the noise plane so they stay uncorrelated.
func (d *Drift) Sample(channel int, t float64) float64 {
	return d.noise.Eval2(float64(channel)*137.5, t)
}
